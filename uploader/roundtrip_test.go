package uploader_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/caching"
	"github.com/Yulian302/lfusys-services-uploads/handlers"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/services"
	"github.com/Yulian302/lfusys-services-uploads/store"
	"github.com/Yulian302/lfusys-services-uploads/uploader"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is a multipart object store whose presigned part URLs point at
// its own HTTP server.
type memBackend struct {
	mu      sync.Mutex
	srv     *httptest.Server
	parts   map[string]map[int32][]byte
	objects map[string][]byte
	failPut map[int32]int
	next    int
}

func newMemBackend(t *testing.T) *memBackend {
	b := &memBackend{
		parts:   map[string]map[int32][]byte{},
		objects: map[string][]byte{},
		failPut: map[int32]int{},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *memBackend) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		b.servePart(w, r)
	case http.MethodGet:
		b.serveObject(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *memBackend) serveObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	b.mu.Lock()
	obj, ok := b.objects[key]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write(obj)
}

func (b *memBackend) servePart(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("uploadId")
	n, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	part := int32(n)
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut[part] > 0 {
		b.failPut[part]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	up, ok := b.parts[uploadID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	up[part] = body
	sum := md5.Sum(body)
	w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	w.WriteHeader(http.StatusOK)
}

func (b *memBackend) CreateMultipartUpload(_ context.Context, _, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := fmt.Sprintf("mem-%d", b.next)
	b.parts[id] = map[int32][]byte{}
	return id, nil
}

func (b *memBackend) PresignUploadPart(_ context.Context, key, uploadID string, part int32, _ time.Duration) (string, error) {
	q := url.Values{}
	q.Set("uploadId", uploadID)
	q.Set("partNumber", strconv.Itoa(int(part)))
	return b.srv.URL + "/" + url.PathEscape(key) + "?" + q.Encode(), nil
}

func (b *memBackend) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []models.CompletedPart) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	up, ok := b.parts[uploadID]
	if !ok {
		return errors.New("NoSuchUpload")
	}
	var obj bytes.Buffer
	for _, p := range parts {
		data, ok := up[p.PartNumber]
		sum := md5.Sum(data)
		if !ok || hex.EncodeToString(sum[:]) != p.ETag {
			return fmt.Errorf("InvalidPart %d", p.PartNumber)
		}
		obj.Write(data)
	}
	b.objects[key] = obj.Bytes()
	delete(b.parts, uploadID)
	return nil
}

func (b *memBackend) AbortMultipartUpload(_ context.Context, _, uploadID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.parts, uploadID)
	return nil
}

func (b *memBackend) GenerateDownloadUrl(_ context.Context, key string, ttl time.Duration) (string, error) {
	return b.srv.URL + "/" + url.PathEscape(key) + "?expires=" + strconv.Itoa(int(ttl.Seconds())) + "&n=" + strconv.FormatInt(time.Now().UnixNano(), 10), nil
}

func (b *memBackend) IsReady(context.Context) error { return nil }
func (b *memBackend) Name() string                  { return "mem" }

type memFiles struct {
	mu    sync.Mutex
	files []models.File
}

func (m *memFiles) Create(_ context.Context, f models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, f)
	return nil
}

func (m *memFiles) List(context.Context) ([]models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.File(nil), m.files...)
	store.SortNewestFirst(out)
	return out, nil
}

func (m *memFiles) IsReady(context.Context) error { return nil }
func (m *memFiles) Name() string                  { return "mem-files" }

type alwaysReady struct{}

func (alwaysReady) Ready() bool { return true }

func newStack(t *testing.T) (*memBackend, *memFiles, *uploader.Client) {
	backend := newMemBackend(t)
	files := &memFiles{}
	l := logger.NewNopLogger()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := caching.NewRedisCachingService(rdb)

	sessions := services.NewSessionServiceImpl(backend, time.Hour, l)
	completion := services.NewUploadCompletionServiceImpl(backend, files, cache, services.NewNullPendingRecordPublisher(), time.Hour, l)
	listing := services.NewFileServiceImpl(files, backend, cache, time.Hour, l)

	router := handlers.Routers(handlers.NewUploadsHandler(sessions, completion, listing, l), handlers.NewHealthHandler(alwaysReady{}), []string{"*"}, l)
	api := httptest.NewServer(router)
	t.Cleanup(api.Close)

	return backend, files, uploader.NewClient(api.URL, api.Client())
}

func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func TestRoundTrip_UploadThenList(t *testing.T) {
	backend, files, client := newStack(t)
	data := payload(12*1024*1024 + 3)

	before, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, before)

	c := uploader.NewCoordinator(client, client, uploader.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	downloadURL, err := c.BeginUpload(context.Background(), uploader.File{
		Name: "notes.txt", ContentType: "text/plain", Size: int64(len(data)), Content: bytes.NewReader(data),
	})
	require.NoError(t, err)
	assert.Contains(t, downloadURL, "1700000000000-notes.txt")

	assert.Equal(t, data, backend.objects["1700000000000-notes.txt"])
	require.Len(t, files.files, 1)
	assert.Equal(t, int64(len(data)), files.files[0].Size)

	listed, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "1700000000000-notes.txt", listed[0].Name)
	assert.Equal(t, "1700000000000-notes.txt", listed[0].S3Key)
	assert.Equal(t, int64(len(data)), listed[0].Size)
	assert.False(t, listed[0].UploadDate.IsZero())

	resp, err := http.Get(listed[0].DownloadURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	again, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, listed[0].DownloadURL, again[0].DownloadURL)
}

func TestRoundTrip_TransientPartFailures(t *testing.T) {
	backend, files, client := newStack(t)
	backend.failPut[2] = 4
	data := payload(11 * 1024 * 1024)

	c := uploader.NewCoordinator(client, client, uploader.WithBackoffStep(time.Millisecond))
	_, err := c.BeginUpload(context.Background(), uploader.File{Name: "a.bin", Size: int64(len(data)), Content: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Len(t, files.files, 1)
}

func TestRoundTrip_PartNeverAccepted(t *testing.T) {
	backend, files, client := newStack(t)
	backend.failPut[2] = uploader.MaxRetry
	data := payload(12 * 1024 * 1024)

	c := uploader.NewCoordinator(client, client, uploader.WithBackoffStep(time.Millisecond))
	_, err := c.BeginUpload(context.Background(), uploader.File{Name: "a.bin", Size: int64(len(data)), Content: bytes.NewReader(data)})
	require.Error(t, err)

	assert.Empty(t, files.files)
	assert.Empty(t, backend.objects)
	// aborted uploads leave no parts behind
	assert.Empty(t, backend.parts)

	listed, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRoundTrip_OutOfOrderPartsRejected(t *testing.T) {
	backend, files, client := newStack(t)
	ctx := context.Background()

	session, err := client.CreateSession(ctx, models.CreateMultipartRequest{FileName: "x.bin", ChunkCount: 2})
	require.NoError(t, err)
	require.Len(t, session.PreSignedUrls, 2)

	var parts []models.CompletedPart
	for i, u := range session.PreSignedUrls {
		etag, err := client.PutChunk(ctx, u, []byte{byte(i)})
		require.NoError(t, err)
		parts = append(parts, models.CompletedPart{PartNumber: int32(i + 1), ETag: etag[1 : len(etag)-1]})
	}
	parts[0], parts[1] = parts[1], parts[0]

	_, err = client.CompleteSession(ctx, models.CompleteMultipartRequest{FileName: "x.bin", UploadId: session.UploadId, Parts: parts, FileSize: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload")
	assert.Empty(t, files.files)
	assert.Empty(t, backend.objects)
}
