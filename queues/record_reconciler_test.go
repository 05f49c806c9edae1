package queues

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/caching"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu       sync.Mutex
	sent     []string
	inbox    []types.Message
	deleted  []string
	received int
}

func (q *fakeQueue) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m")}, nil
}

func (q *fakeQueue) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	q.received++
	msgs := q.inbox
	q.inbox = nil
	q.mu.Unlock()

	if len(msgs) > 0 {
		return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return &sqs.ReceiveMessageOutput{}, nil
	}
}

func (q *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (q *fakeQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type fakeFileStore struct {
	mu      sync.Mutex
	files   []models.File
	failFor map[string]bool
}

func (s *fakeFileStore) Create(_ context.Context, f models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[f.FileId] {
		return errors.New("still unavailable")
	}
	s.files = append(s.files, f)
	return nil
}

func (s *fakeFileStore) List(context.Context) ([]models.File, error) { return nil, nil }
func (s *fakeFileStore) IsReady(context.Context) error               { return nil }
func (s *fakeFileStore) Name() string                                { return "fake" }

func message(t *testing.T, handle string, evt models.PendingRecordEvent) types.Message {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return types.Message{ReceiptHandle: aws.String(handle), Body: aws.String(string(body))}
}

func TestPublisher_SendsEncodedRecord(t *testing.T) {
	q := &fakeQueue{}
	p := NewPendingRecordPublisherImpl(q, "https://sqs.local/queue")

	evt := models.NewPendingRecordEvent(models.File{FileId: "f1", Name: "a.txt", Size: 3, S3Key: "a.txt", UploadDate: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Len(t, q.sent, 1)
	var got models.PendingRecordEvent
	require.NoError(t, json.Unmarshal([]byte(q.sent[0]), &got))
	assert.Equal(t, evt, got)
}

func TestRecordReconciler_HandleMessage(t *testing.T) {
	q := &fakeQueue{}
	files := &fakeFileStore{failFor: map[string]bool{"stuck": true}}
	r := NewRecordReconciler(context.Background(), q, files, caching.NewNullCachingService(), "u", "files:list", logger.NewNopLogger())

	ok := models.PendingRecordEvent{FileId: "f1", Name: "a.txt", Size: 1, S3Key: "a.txt", UploadDate: time.Now().UTC()}
	stuck := models.PendingRecordEvent{FileId: "stuck", Name: "b.txt", Size: 1, S3Key: "b.txt"}

	r.handleMessage(context.Background(), message(t, "h-ok", ok))
	r.handleMessage(context.Background(), message(t, "h-stuck", stuck))
	r.handleMessage(context.Background(), types.Message{ReceiptHandle: aws.String("h-poison"), Body: aws.String("{not json")})
	r.handleMessage(context.Background(), types.Message{ReceiptHandle: aws.String("h-empty")})

	require.Len(t, files.files, 1)
	assert.Equal(t, "f1", files.files[0].FileId)
	assert.Equal(t, []string{"h-ok", "h-poison", "h-empty"}, q.deletedHandles())
}

func TestRecordReconciler_StartShutdown(t *testing.T) {
	q := &fakeQueue{}
	files := &fakeFileStore{}
	q.inbox = []types.Message{message(t, "h1", models.PendingRecordEvent{FileId: "f1", S3Key: "k"})}

	r := NewRecordReconciler(context.Background(), q, files, caching.NewNullCachingService(), "u", "files:list", logger.NewNopLogger())
	r.Start()

	assert.Eventually(t, func() bool {
		return len(q.deletedHandles()) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
}

func TestRecordReconciler_PersistedRecordBumpsListingGeneration(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := caching.NewRedisCachingService(client)

	q := &fakeQueue{}
	files := &fakeFileStore{failFor: map[string]bool{"stuck": true}}
	r := NewRecordReconciler(context.Background(), q, files, cache, "u", "files:list", logger.NewNopLogger())

	r.handleMessage(context.Background(), message(t, "h-stuck", models.PendingRecordEvent{FileId: "stuck", S3Key: "b.txt"}))
	assert.False(t, mr.Exists("files:list:gen"))

	r.handleMessage(context.Background(), message(t, "h-ok", models.PendingRecordEvent{FileId: "f1", S3Key: "a.txt"}))
	gen, err := mr.Get("files:list:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
}
