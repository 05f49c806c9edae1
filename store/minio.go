package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAPI is the subset of minio.Core used by MinioMultipartStorage.
type MinioAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	Presign(ctx context.Context, method string, bucketName string, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName string, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

var _ MinioAPI = (*minio.Core)(nil)

type MinioMultipartStorage struct {
	client     MinioAPI
	bucketName string

	logger logger.Logger
}

func NewMinioCore(endpoint, accessKey, secretKey string, secure bool) (*minio.Core, error) {
	return minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
}

func NewMinioMultipartStorage(client MinioAPI, bucketName string, l logger.Logger) *MinioMultipartStorage {
	return &MinioMultipartStorage{
		client:     client,
		bucketName: bucketName,
		logger:     l,
	}
}

func (s *MinioMultipartStorage) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucketName)
	}
	return nil
}

func (s *MinioMultipartStorage) Name() string {
	return "MultipartStorage[minio:" + s.bucketName + "]"
}

func (s *MinioMultipartStorage) CreateMultipartUpload(ctx context.Context, key string, contentType string) (string, error) {
	if key == "" {
		return "", apperror.New("createMultipartUpload", apperror.ErrInvalidInput, errors.New("key cannot be empty"))
	}
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	uploadID, err := s.client.NewMultipartUpload(ctx, s.bucketName, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("failed to create multipart upload", "key", key, "error", err)
		return "", apperror.New("createMultipartUpload", apperror.ErrBackend, err).WithKey(key)
	}
	return uploadID, nil
}

func (s *MinioMultipartStorage) PresignUploadPart(ctx context.Context, key string, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(int(partNumber)))
	params.Set("uploadId", uploadID)

	u, err := s.client.Presign(ctx, http.MethodPut, s.bucketName, key, ttl, params)
	if err != nil {
		return "", apperror.New("presignUploadPart", apperror.ErrBackend, err).WithKey(key)
	}
	return u.String(), nil
}

func (s *MinioMultipartStorage) CompleteMultipartUpload(ctx context.Context, key string, uploadID string, parts []models.CompletedPart) error {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{
			PartNumber: int(p.PartNumber),
			ETag:       p.ETag,
		}
	}

	if _, err := s.client.CompleteMultipartUpload(ctx, s.bucketName, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		s.logger.Error("failed to complete multipart upload", "key", key, "upload_id", uploadID, "code", minio.ToErrorResponse(err).Code, "error", err)
		return apperror.New("completeMultipartUpload", apperror.ErrAssembly, err).WithKey(key)
	}

	s.logger.Info("completed multipart upload", "key", key, "upload_id", uploadID, "parts", len(parts))
	return nil
}

func (s *MinioMultipartStorage) AbortMultipartUpload(ctx context.Context, key string, uploadID string) error {
	if err := s.client.AbortMultipartUpload(ctx, s.bucketName, key, uploadID); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchUpload" {
			return apperror.New("abortMultipartUpload", apperror.ErrNotFound, err).WithKey(key)
		}
		return apperror.New("abortMultipartUpload", apperror.ErrBackend, err).WithKey(key)
	}
	return nil
}

func (s *MinioMultipartStorage) GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, ttl, nil)
	if err != nil {
		return "", apperror.New("generateDownloadUrl", apperror.ErrBackend, err).WithKey(key)
	}
	return u.String(), nil
}
