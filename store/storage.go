package store

import (
	"context"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/health"
	"github.com/Yulian302/lfusys-services-uploads/models"
)

// MultipartStorage is the storage backend's multipart upload API.
type MultipartStorage interface {
	CreateMultipartUpload(ctx context.Context, key string, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key string, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key string, uploadID string, parts []models.CompletedPart) error
	AbortMultipartUpload(ctx context.Context, key string, uploadID string) error
	GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error)

	health.ReadinessCheck
}
