package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/caching"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const pollErrorDelay = time.Second

type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

type PendingRecordPublisherImpl struct {
	client   SQSAPI
	queueUrl string
}

func NewPendingRecordPublisherImpl(client SQSAPI, queueUrl string) *PendingRecordPublisherImpl {
	return &PendingRecordPublisherImpl{
		client:   client,
		queueUrl: queueUrl,
	}
}

func (p *PendingRecordPublisherImpl) Publish(ctx context.Context, evt models.PendingRecordEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode pending record: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueUrl),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send pending record: %w", err)
	}
	return nil
}

// RecordReconciler drains the pending record queue into the file store.
type RecordReconciler struct {
	client    SQSAPI
	fileStore store.FileStore
	listing   *caching.ListingCache
	queueUrl  string

	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecordReconciler(
	parent context.Context,
	client SQSAPI,
	fileStore store.FileStore,
	cachingSvc caching.CachingService,
	queueUrl string,
	cacheKey string,
	l logger.Logger,
) *RecordReconciler {

	ctx, cancel := context.WithCancel(parent)

	return &RecordReconciler{
		client:    client,
		fileStore: fileStore,
		listing:   caching.NewListingCache(cachingSvc, cacheKey, 0),
		queueUrl:  queueUrl,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RecordReconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.pollLoop()
	}()
}

func (r *RecordReconciler) pollLoop() error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		out, err := r.client.ReceiveMessage(r.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueUrl),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20, // long poll
			VisibilityTimeout:   30,
		})
		if err != nil {
			if r.ctx.Err() != nil {
				return r.ctx.Err()
			}
			r.logger.Warn("receive pending records failed", "error", err)
			select {
			case <-r.ctx.Done():
			case <-time.After(pollErrorDelay):
			}
			continue
		}

		for _, msg := range out.Messages {
			r.handleMessage(r.ctx, msg)
		}
	}
}

func (r *RecordReconciler) deleteMessage(ctx context.Context, msg types.Message) {
	_, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueUrl),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		r.logger.Warn("delete pending record message failed", "error", err)
	}
}

func (r *RecordReconciler) handleMessage(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		r.deleteMessage(ctx, msg)
		return
	}

	var evt models.PendingRecordEvent
	if err := json.Unmarshal([]byte(*msg.Body), &evt); err != nil || evt.FileId == "" || evt.S3Key == "" {
		// poison message
		r.logger.Error("dropping malformed pending record", "message_id", aws.ToString(msg.MessageId))
		r.deleteMessage(ctx, msg)
		return
	}

	if err := r.fileStore.Create(ctx, evt.File()); err != nil {
		r.logger.Warn("pending record still not persisted", "file_id", evt.FileId, "error", err)
		return // redelivered after visibility timeout
	}

	// invalidate cache
	if err := r.listing.Invalidate(ctx); err != nil {
		r.logger.Warn("cached files invalidation failed", "file_id", evt.FileId, "error", err)
	}

	r.logger.Info("pending record persisted", "file_id", evt.FileId, "key", evt.S3Key)
	r.deleteMessage(ctx, msg)
}

func (r *RecordReconciler) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
