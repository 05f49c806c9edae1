package uploader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyTransport fails the first failures calls for each URL.
type flakyTransport struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	bodies   map[string][]byte
	etag     string
}

func newFlakyTransport(failures map[string]int) *flakyTransport {
	return &flakyTransport{
		failures: failures,
		calls:    map[string]int{},
		bodies:   map[string][]byte{},
		etag:     `"9b2cf535f27731c974343645a3985328"`,
	}
}

func (f *flakyTransport) PutChunk(_ context.Context, url string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.calls[url] <= f.failures[url] {
		return "", errors.New("put chunk: unexpected status 503")
	}
	f.bodies[url] = append([]byte(nil), data...)
	return f.etag, nil
}

func (f *flakyTransport) callsTo(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func TestUploadChunk_SucceedsAfterFourFailures(t *testing.T) {
	transport := newFlakyTransport(map[string]int{"u": 4})

	var waits []time.Duration
	part, err := uploadChunk(context.Background(), transport, "u", 3, []byte("data"), time.Millisecond,
		func(attempt int, _ error, wait time.Duration) {
			assert.Equal(t, len(waits)+1, attempt)
			waits = append(waits, wait)
		})
	require.NoError(t, err)

	assert.Equal(t, int32(3), part.PartNumber)
	assert.Equal(t, "9b2cf535f27731c974343645a3985328", part.ETag)
	assert.Equal(t, 5, transport.callsTo("u"))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 4 * time.Millisecond}, waits)
}

func TestUploadChunk_GivesUpAfterMaxRetry(t *testing.T) {
	transport := newFlakyTransport(map[string]int{"u": MaxRetry})

	part, err := uploadChunk(context.Background(), transport, "u", 1, []byte("data"), time.Millisecond, nil)
	assert.ErrorIs(t, err, apperror.ErrChunkTransfer)
	assert.Empty(t, part.ETag)
	assert.Equal(t, MaxRetry, transport.callsTo("u"))
}

func TestUploadChunk_StopsOnCancel(t *testing.T) {
	transport := newFlakyTransport(map[string]int{"u": MaxRetry})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uploadChunk(ctx, transport, "u", 1, []byte("data"), time.Hour, nil)
	assert.ErrorIs(t, err, apperror.ErrChunkTransfer)
	assert.Equal(t, 1, transport.callsTo("u"))
}
