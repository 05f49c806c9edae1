package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
)

type Status int

const (
	StatusNotStarted Status = iota
	StatusUploading
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusUploading:
		return "uploading"
	case StatusSucceeded:
		return "uploaded successfully"
	case StatusFailed:
		return apperror.MsgUploadFailed
	default:
		return "unknown"
	}
}

// ProgressUnset is reported when there is no upload progress to show.
const ProgressUnset = -1

// Observer receives every progress and status change of the coordinator.
type Observer interface {
	OnProgress(percent int)
	OnStatus(status Status, message string)
}

type nopObserver struct{}

func (nopObserver) OnProgress(int)          {}
func (nopObserver) OnStatus(Status, string) {}

type Option func(*Coordinator)

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithBackoffStep(step time.Duration) Option {
	return func(c *Coordinator) { c.backoffStep = step }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator drives one upload at a time: it opens a session, sends every
// chunk in order and finalizes the session with the collected tokens.
type Coordinator struct {
	api       SessionAPI
	transport ChunkTransport
	observer  Observer

	backoffStep time.Duration
	now         func() time.Time
	logger      logger.Logger

	busy atomic.Bool

	mu       sync.Mutex
	selected *File
}

func NewCoordinator(api SessionAPI, transport ChunkTransport, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:         api,
		transport:   transport,
		observer:    nopObserver{},
		backoffStep: DefaultBackoffStep,
		now:         time.Now,
		logger:      logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectFile records the chosen file and resets progress and status.
func (c *Coordinator) SelectFile(f File) {
	c.mu.Lock()
	c.selected = &f
	c.mu.Unlock()

	c.observer.OnProgress(ProgressUnset)
	c.observer.OnStatus(StatusNotStarted, StatusNotStarted.String())
}

// Selected returns the currently selected file, if any.
func (c *Coordinator) Selected() (File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return File{}, false
	}
	return *c.selected, true
}

// DestinationName is the object key a file uploads to.
func DestinationName(at time.Time, name string) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + "-" + name
}

// BeginUpload uploads f and returns its download URL. A second call while an
// upload is running fails with ErrUploadInProgress.
func (c *Coordinator) BeginUpload(ctx context.Context, f File) (string, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return "", apperror.New("beginUpload", apperror.ErrUploadInProgress, nil).WithKey(f.Name)
	}
	defer c.busy.Store(false)

	c.observer.OnStatus(StatusUploading, StatusUploading.String())

	downloadURL, err := c.upload(ctx, f)
	if err != nil {
		c.logger.Error("upload failed", "file", f.Name, "error", err)
		c.observer.OnProgress(ProgressUnset)
		c.observer.OnStatus(StatusFailed, apperror.MsgUploadFailed)
		return "", err
	}

	c.observer.OnProgress(100)
	c.observer.OnStatus(StatusSucceeded, StatusSucceeded.String())

	c.mu.Lock()
	c.selected = nil
	c.mu.Unlock()
	return downloadURL, nil
}

func (c *Coordinator) upload(ctx context.Context, f File) (string, error) {
	chunkCount := ChunkCount(f.Size)
	if chunkCount == 0 {
		return "", apperror.New("beginUpload", apperror.ErrInvalidInput, errors.New("file is empty")).WithKey(f.Name)
	}
	if chunkCount > models.MaxChunkCount {
		return "", apperror.New("beginUpload", apperror.ErrInvalidInput, fmt.Errorf("file needs %d chunks, limit is %d", chunkCount, models.MaxChunkCount)).WithKey(f.Name)
	}
	if f.Content == nil {
		return "", apperror.New("beginUpload", apperror.ErrInvalidInput, errors.New("file has no content")).WithKey(f.Name)
	}

	name := DestinationName(c.now(), f.Name)
	contentType := f.ContentType
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	session, err := c.api.CreateSession(ctx, models.CreateMultipartRequest{
		FileName:   name,
		FileType:   contentType,
		ChunkCount: int32(chunkCount),
	})
	if err != nil {
		return "", apperror.New("createSession", apperror.ErrBackend, err).WithKey(name)
	}
	if int64(len(session.PreSignedUrls)) != chunkCount {
		err = fmt.Errorf("got %d part urls for %d chunks", len(session.PreSignedUrls), chunkCount)
		c.abort(ctx, name, session.UploadId)
		return "", apperror.New("createSession", apperror.ErrBackend, err).WithKey(name)
	}
	c.logger.Info("upload session opened", "key", name, "upload_id", session.UploadId, "chunks", chunkCount)

	parts, err := c.sendChunks(ctx, f, name, session.PreSignedUrls)
	if err != nil {
		c.abort(ctx, name, session.UploadId)
		return "", err
	}

	resp, err := c.api.CompleteSession(ctx, models.CompleteMultipartRequest{
		FileName: name,
		UploadId: session.UploadId,
		Parts:    parts.Parts(),
		FileSize: f.Size,
	})
	if err != nil {
		return "", apperror.New("completeSession", apperror.ErrAssembly, err).WithKey(name)
	}

	c.logger.Info("upload finalized", "key", name, "upload_id", session.UploadId)
	return resp.DownloadUrl, nil
}

func (c *Coordinator) sendChunks(ctx context.Context, f File, name string, urls []string) (*PartList, error) {
	parts := NewPartList(len(urls))
	buf := make([]byte, models.ChunkSize)
	var sent int64

	for i, url := range urls {
		start, end := ChunkBounds(int64(i), f.Size)
		data := buf[:end-start]
		n, err := f.Content.ReadAt(data, start)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
			return nil, apperror.New("readChunk", apperror.ErrChunkTransfer, err).WithKey(name)
		}

		partNumber := int32(i + 1)
		part, err := uploadChunk(ctx, c.transport, url, partNumber, data, c.backoffStep,
			func(attempt int, err error, wait time.Duration) {
				c.logger.Warn("chunk upload failed, retrying", "key", name, "part", partNumber, "attempt", attempt, "wait", wait, "error", err)
			})
		if err != nil {
			return nil, err
		}

		parts.Append(part)
		sent += end - start
		c.observer.OnProgress(percent(sent, f.Size))
	}
	return parts, nil
}

// abort releases uploaded parts. Failures are logged only.
func (c *Coordinator) abort(ctx context.Context, name, uploadID string) {
	if uploadID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.api.AbortSession(ctx, models.AbortMultipartRequest{FileName: name, UploadId: uploadID}); err != nil {
		c.logger.Warn("abort upload session failed", "key", name, "upload_id", uploadID, "error", err)
	}
}
