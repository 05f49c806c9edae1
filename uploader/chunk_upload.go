package uploader

import (
	"context"
	"strings"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/retries"
)

const (
	// MaxRetry is the number of transfer attempts per chunk.
	MaxRetry = 5
	// DefaultBackoffStep is multiplied by the attempt number between retries.
	DefaultBackoffStep = 20 * time.Second
)

// ChunkTransport sends one chunk to its presigned URL and returns the raw ETag header.
type ChunkTransport interface {
	PutChunk(ctx context.Context, url string, data []byte) (string, error)
}

type retryNotify func(attempt int, err error, wait time.Duration)

// uploadChunk transfers data with up to MaxRetry attempts, waiting attempt*step
// after each failure, and returns the part's completion token.
func uploadChunk(
	ctx context.Context,
	transport ChunkTransport,
	url string,
	partNumber int32,
	data []byte,
	step time.Duration,
	notify retryNotify,
) (models.CompletedPart, error) {
	var etag string
	err := retries.RetryLinear(ctx, MaxRetry, step, func() error {
		tag, err := transport.PutChunk(ctx, url, data)
		if err != nil {
			return err
		}
		etag = tag
		return nil
	}, notify)
	if err != nil {
		return models.CompletedPart{}, apperror.New("uploadChunk", apperror.ErrChunkTransfer, err)
	}

	return models.CompletedPart{
		PartNumber: partNumber,
		ETag:       strings.ReplaceAll(etag, `"`, ""),
	}, nil
}
