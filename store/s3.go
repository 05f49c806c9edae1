package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/retries"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3MultipartStorage.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutBucketCors(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error)
}

// Presigner is the subset of the S3 presign client used by S3MultipartStorage.
type Presigner interface {
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ S3API     = (*s3.Client)(nil)
	_ Presigner = (*s3.PresignClient)(nil)
)

type S3MultipartStorage struct {
	client     S3API
	presigner  Presigner
	bucketName string

	logger logger.Logger
}

func NewS3MultipartStorage(client *s3.Client, bucketName string, l logger.Logger) *S3MultipartStorage {
	return NewS3MultipartStorageWithPresigner(client, s3.NewPresignClient(client), bucketName, l)
}

func NewS3MultipartStorageWithPresigner(client S3API, presigner Presigner, bucketName string, l logger.Logger) *S3MultipartStorage {
	return &S3MultipartStorage{
		client:     client,
		presigner:  presigner,
		bucketName: bucketName,
		logger:     l,
	}
}

func (s *S3MultipartStorage) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
				Bucket: aws.String(s.bucketName),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *S3MultipartStorage) Name() string {
	return "MultipartStorage[s3:" + s.bucketName + "]"
}

func (s *S3MultipartStorage) CreateMultipartUpload(ctx context.Context, key string, contentType string) (string, error) {
	if key == "" {
		return "", apperror.New("createMultipartUpload", apperror.ErrInvalidInput, errors.New("key cannot be empty"))
	}
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("failed to create multipart upload", "key", key, "error", err)
		return "", apperror.New("createMultipartUpload", apperror.ErrBackend, err).WithKey(key)
	}

	uploadID := aws.ToString(out.UploadId)
	s.logger.Debug("created multipart upload", "key", key, "upload_id", uploadID)
	return uploadID, nil
}

func (s *S3MultipartStorage) PresignUploadPart(ctx context.Context, key string, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	presigned, err := s.presigner.PresignUploadPart(
		ctx,
		&s3.UploadPartInput{
			Bucket:     aws.String(s.bucketName),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		s.logger.Error("failed to presign part upload", "key", key, "upload_id", uploadID, "part_number", partNumber, "error", err)
		return "", apperror.New("presignUploadPart", apperror.ErrBackend, err).WithKey(key)
	}
	return presigned.URL, nil
}

func (s *S3MultipartStorage) CompleteMultipartUpload(ctx context.Context, key string, uploadID string, parts []models.CompletedPart) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucketName),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		s.logger.Error("failed to complete multipart upload", "key", key, "upload_id", uploadID, "code", errorCode(err), "error", err)
		return apperror.New("completeMultipartUpload", apperror.ErrAssembly, err).WithKey(key)
	}

	s.logger.Info("completed multipart upload", "key", key, "upload_id", uploadID, "parts", len(parts))
	return nil
}

func (s *S3MultipartStorage) AbortMultipartUpload(ctx context.Context, key string, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucketName),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		if errorCode(err) == "NoSuchUpload" {
			return apperror.New("abortMultipartUpload", apperror.ErrNotFound, err).WithKey(key)
		}
		return apperror.New("abortMultipartUpload", apperror.ErrBackend, err).WithKey(key)
	}
	s.logger.Info("aborted multipart upload", "key", key, "upload_id", uploadID)
	return nil
}

func (s *S3MultipartStorage) GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigned, err := s.presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", apperror.New("generateDownloadUrl", apperror.ErrBackend, err).WithKey(key)
	}

	return presigned.URL, nil
}

// ConfigureCORS allows browsers on origins to PUT parts directly and read the ETag header.
func (s *S3MultipartStorage) ConfigureCORS(ctx context.Context, origins []string) error {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	_, err := s.client.PutBucketCors(ctx, &s3.PutBucketCorsInput{
		Bucket: aws.String(s.bucketName),
		CORSConfiguration: &types.CORSConfiguration{
			CORSRules: []types.CORSRule{
				{
					AllowedMethods: []string{"PUT", "GET"},
					AllowedOrigins: origins,
					AllowedHeaders: []string{"*"},
					ExposeHeaders:  []string{"ETag"},
					MaxAgeSeconds:  aws.Int32(3000),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put bucket cors: %w", err)
	}
	s.logger.Info("bucket cors configured", "bucket", s.bucketName, "origins", origins)
	return nil
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
