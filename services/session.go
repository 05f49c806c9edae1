package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/store"
)

type SessionService interface {
	CreateSession(ctx context.Context, name, contentType string, chunkCount int32) (models.UploadSession, []models.ChunkAuthorization, error)
	AbortSession(ctx context.Context, name, uploadID string) error
}

type SessionServiceImpl struct {
	storage         store.MultipartStorage
	uploadURLExpiry time.Duration

	logger logger.Logger
}

func NewSessionServiceImpl(storage store.MultipartStorage, uploadURLExpiry time.Duration, l logger.Logger) *SessionServiceImpl {
	return &SessionServiceImpl{
		storage:         storage,
		uploadURLExpiry: uploadURLExpiry,
		logger:          l,
	}
}

// CreateSession opens a multipart upload under name and presigns one PUT URL
// per part, numbered 1..chunkCount. Backend failures are not retried.
func (svc *SessionServiceImpl) CreateSession(ctx context.Context, name, contentType string, chunkCount int32) (models.UploadSession, []models.ChunkAuthorization, error) {
	if name == "" {
		return models.UploadSession{}, nil, apperror.New("createSession", apperror.ErrInvalidInput, errors.New("file name cannot be empty"))
	}
	if chunkCount <= 0 || chunkCount > models.MaxChunkCount {
		return models.UploadSession{}, nil, apperror.New("createSession", apperror.ErrInvalidInput, fmt.Errorf("chunk count %d out of range", chunkCount)).WithKey(name)
	}
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	uploadID, err := svc.storage.CreateMultipartUpload(ctx, name, contentType)
	if err != nil {
		svc.logger.Error("failed to create upload session", "key", name, "error", err)
		return models.UploadSession{}, nil, err
	}

	expiresAt := time.Now().Add(svc.uploadURLExpiry)
	auths := make([]models.ChunkAuthorization, 0, chunkCount)
	for part := int32(1); part <= chunkCount; part++ {
		u, err := svc.storage.PresignUploadPart(ctx, name, uploadID, part, svc.uploadURLExpiry)
		if err != nil {
			svc.logger.Error("failed to presign part", "key", name, "upload_id", uploadID, "part", part, "error", err)
			return models.UploadSession{}, nil, err
		}
		auths = append(auths, models.ChunkAuthorization{
			PartNumber: part,
			URL:        u,
			ExpiresAt:  expiresAt,
		})
	}

	svc.logger.Info("upload session created", "key", name, "upload_id", uploadID, "chunks", chunkCount)
	return models.UploadSession{
		UploadId:    uploadID,
		ObjectKey:   name,
		ContentType: contentType,
		ChunkCount:  chunkCount,
	}, auths, nil
}

// AbortSession releases the parts of an upload that will never be completed.
func (svc *SessionServiceImpl) AbortSession(ctx context.Context, name, uploadID string) error {
	if name == "" || uploadID == "" {
		return apperror.New("abortSession", apperror.ErrInvalidInput, errors.New("file name and upload id are required"))
	}
	if err := svc.storage.AbortMultipartUpload(ctx, name, uploadID); err != nil {
		svc.logger.Warn("failed to abort upload session", "key", name, "upload_id", uploadID, "error", err)
		return err
	}
	svc.logger.Info("upload session aborted", "key", name, "upload_id", uploadID)
	return nil
}
