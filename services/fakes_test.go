package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/Yulian302/lfusys-services-uploads/caching"
	"github.com/Yulian302/lfusys-services-uploads/models"
)

type fakeStorage struct {
	mu sync.Mutex

	createErr   error
	presignErr  error
	completeErr error

	created   []string
	presigned []int32
	completed map[string][]models.CompletedPart
	aborted   []string
	downloads int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{completed: map[string][]models.CompletedPart{}}
}

func (f *fakeStorage) CreateMultipartUpload(_ context.Context, key, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", apperror.New("createMultipartUpload", apperror.ErrBackend, f.createErr)
	}
	f.created = append(f.created, key)
	return fmt.Sprintf("upload-%d", len(f.created)), nil
}

func (f *fakeStorage) PresignUploadPart(_ context.Context, key, uploadID string, part int32, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", apperror.New("presignUploadPart", apperror.ErrBackend, f.presignErr)
	}
	f.presigned = append(f.presigned, part)
	return fmt.Sprintf("https://bucket.local/%s?partNumber=%d&uploadId=%s", key, part, uploadID), nil
}

func (f *fakeStorage) CompleteMultipartUpload(_ context.Context, key, _ string, parts []models.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return apperror.New("completeMultipartUpload", apperror.ErrAssembly, f.completeErr)
	}
	f.completed[key] = parts
	return nil
}

func (f *fakeStorage) AbortMultipartUpload(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, key)
	return nil
}

func (f *fakeStorage) GenerateDownloadUrl(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return fmt.Sprintf("https://bucket.local/%s?sig=%d", key, f.downloads), nil
}

func (f *fakeStorage) IsReady(context.Context) error { return nil }
func (f *fakeStorage) Name() string                  { return "fake-storage" }

type fakeFileStore struct {
	mu        sync.Mutex
	files     []models.File
	createErr error
	listErr   error
	lists     int
}

func (f *fakeFileStore) Create(_ context.Context, file models.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return apperror.New("createFile", apperror.ErrMetadata, f.createErr)
	}
	f.files = append(f.files, file)
	return nil
}

func (f *fakeFileStore) List(context.Context) ([]models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, apperror.New("listFiles", apperror.ErrMetadata, f.listErr)
	}
	return append([]models.File(nil), f.files...), nil
}

func (f *fakeFileStore) IsReady(context.Context) error { return nil }
func (f *fakeFileStore) Name() string                  { return "fake-files" }

type recordingPublisher struct {
	events []models.PendingRecordEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt models.PendingRecordEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, caching.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mapCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// gatedFileStore blocks List after reading the store until release is closed.
type gatedFileStore struct {
	*fakeFileStore
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedFileStore(files *fakeFileStore) *gatedFileStore {
	return &gatedFileStore{fakeFileStore: files, read: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedFileStore) List(ctx context.Context) ([]models.File, error) {
	files, err := g.fakeFileStore.List(ctx)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return files, err
}
