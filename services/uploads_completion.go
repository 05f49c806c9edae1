package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/Yulian302/lfusys-services-uploads/caching"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/store"
	"github.com/google/uuid"
)

// FilesListCacheKey holds the cached record listing.
const FilesListCacheKey = "files:list"

// PendingRecordPublisher hands records that could not be persisted to a retry queue.
type PendingRecordPublisher interface {
	Publish(ctx context.Context, evt models.PendingRecordEvent) error
}

type UploadCompletionService interface {
	CompleteSession(ctx context.Context, name, uploadID string, parts []models.CompletedPart, fileSize int64) (string, error)
}

type UploadCompletionServiceImpl struct {
	storage           store.MultipartStorage
	fileStore         store.FileStore
	listing           *caching.ListingCache
	pending           PendingRecordPublisher
	downloadURLExpiry time.Duration

	now    func() time.Time
	logger logger.Logger
}

func NewUploadCompletionServiceImpl(
	storage store.MultipartStorage,
	fileStore store.FileStore,
	cachingSvc caching.CachingService,
	pending PendingRecordPublisher,
	downloadURLExpiry time.Duration,
	l logger.Logger,
) *UploadCompletionServiceImpl {
	return &UploadCompletionServiceImpl{
		storage:           storage,
		fileStore:         fileStore,
		listing:           caching.NewListingCache(cachingSvc, FilesListCacheKey, filesListCacheTTL),
		pending:           pending,
		downloadURLExpiry: downloadURLExpiry,
		now:               func() time.Time { return time.Now().UTC() },
		logger:            l,
	}
}

// CompleteSession assembles the object from parts, mints a download URL and
// records the file. Nothing is recorded when assembly is rejected.
func (svc *UploadCompletionServiceImpl) CompleteSession(ctx context.Context, name, uploadID string, parts []models.CompletedPart, fileSize int64) (string, error) {
	if name == "" || uploadID == "" {
		return "", apperror.New("completeSession", apperror.ErrInvalidInput, errors.New("file name and upload id are required"))
	}
	if fileSize <= 0 {
		return "", apperror.New("completeSession", apperror.ErrInvalidInput, errors.New("invalid file size")).WithKey(name)
	}
	if err := validateParts(parts); err != nil {
		svc.logger.Warn("rejected part list", "key", name, "upload_id", uploadID, "error", err)
		return "", apperror.New("completeSession", apperror.ErrAssembly, err).WithKey(name)
	}

	svc.logger.Info("upload finalization started", "key", name, "upload_id", uploadID, "parts", len(parts))
	if err := svc.storage.CompleteMultipartUpload(ctx, name, uploadID, parts); err != nil {
		svc.logger.Error("upload finalization failed", "key", name, "upload_id", uploadID, "error", err)
		return "", err
	}

	downloadURL, err := svc.storage.GenerateDownloadUrl(ctx, name, svc.downloadURLExpiry)
	if err != nil {
		svc.logger.Error("failed to generate download url", "key", name, "error", err)
		return "", apperror.New("completeSession", apperror.ErrMetadata, err).WithKey(name)
	}

	file := models.File{
		FileId:     uuid.NewString(),
		Name:       name,
		Size:       fileSize,
		S3Key:      name,
		UploadDate: svc.now(),
	}
	if err := svc.fileStore.Create(ctx, file); err != nil {
		svc.logger.Error("failed to create file record", "key", name, "file_id", file.FileId, "error", err)
		if perr := svc.pending.Publish(ctx, models.NewPendingRecordEvent(file)); perr != nil {
			svc.logger.Error("failed to queue file record", "key", name, "file_id", file.FileId, "error", perr)
		}
		return "", apperror.New("completeSession", apperror.ErrMetadata, err).WithKey(name)
	}

	// invalidate cache
	if err := svc.listing.Invalidate(ctx); err != nil {
		svc.logger.Warn("cached files invalidation failed", "key", name, "error", err)
	}

	svc.logger.Info("upload completed successfully", "key", name, "upload_id", uploadID, "file_id", file.FileId)
	return downloadURL, nil
}

// validateParts requires ascending part numbers forming exactly 1..len(parts).
func validateParts(parts []models.CompletedPart) error {
	if len(parts) == 0 {
		return errors.New("no parts submitted")
	}
	for i, p := range parts {
		want := int32(i + 1)
		if p.PartNumber != want {
			return fmt.Errorf("part %d at position %d, want %d", p.PartNumber, i, want)
		}
		if p.ETag == "" {
			return fmt.Errorf("part %d has empty etag", p.PartNumber)
		}
	}
	return nil
}

type NullPendingRecordPublisher struct{}

func NewNullPendingRecordPublisher() *NullPendingRecordPublisher {
	return &NullPendingRecordPublisher{}
}

func (NullPendingRecordPublisher) Publish(context.Context, models.PendingRecordEvent) error {
	return errors.New("no reconciliation queue configured")
}
