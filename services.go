package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/caching"
	"github.com/Yulian302/lfusys-services-uploads/config"
	"github.com/Yulian302/lfusys-services-uploads/handlers"
	"github.com/Yulian302/lfusys-services-uploads/health"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/queues"
	"github.com/Yulian302/lfusys-services-uploads/services"
	"github.com/Yulian302/lfusys-services-uploads/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi"
)

type Stores struct {
	files   store.FileStore
	storage store.MultipartStorage
	cache   caching.CachingService
}

type Services struct {
	Sessions   services.SessionService
	Completion services.UploadCompletionService
	Files      services.FileService
	Reconciler *queues.RecordReconciler

	Stores *Stores
}

type Shutdowner interface {
	Shutdown(context.Context) error
}

func BuildServices(app *App) (*Services, error) {
	cfg := app.Config
	l := app.Logger

	var storage store.MultipartStorage
	switch {
	case app.Minio != nil:
		storage = store.NewMinioMultipartStorage(app.Minio, cfg.S3Config.BucketName, l.With("component", "storage"))
	default:
		storage = store.NewS3MultipartStorage(app.S3, cfg.S3Config.BucketName, l.With("component", "storage"))
	}

	var fileStore store.FileStore
	switch {
	case app.Postgres != nil:
		pg := store.NewPostgresFileStoreImpl(app.Postgres)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		fileStore = pg
	default:
		fileStore = store.NewDynamoDbFileStoreImpl(app.DynamoDB, cfg.MetadataConfig.FilesTableName)
	}

	var cachingSvc caching.CachingService
	cachingSvc = caching.NewNullCachingService()
	if app.Redis != nil {
		cachingSvc = caching.NewRedisCachingService(app.Redis)
	}

	var pending services.PendingRecordPublisher = services.NewNullPendingRecordPublisher()
	var reconciler *queues.RecordReconciler
	if app.Sqs != nil {
		queueUrl, err := resolveQueueURL(app.Sqs, *cfg.ServiceConfig)
		if err != nil {
			return nil, err
		}
		pending = queues.NewPendingRecordPublisherImpl(app.Sqs, queueUrl)
		reconciler = queues.NewRecordReconciler(
			context.Background(),
			app.Sqs,
			fileStore,
			cachingSvc,
			queueUrl,
			services.FilesListCacheKey,
			l.With("component", "reconciler"),
		)
	}

	return &Services{
		Sessions:   services.NewSessionServiceImpl(storage, cfg.S3Config.UploadURLExpiry, l.With("component", "sessions")),
		Completion: services.NewUploadCompletionServiceImpl(storage, fileStore, cachingSvc, pending, cfg.S3Config.DownloadURLExpiry, l.With("component", "completion")),
		Files:      services.NewFileServiceImpl(fileStore, storage, cachingSvc, cfg.S3Config.DownloadURLExpiry, l.With("component", "files")),
		Reconciler: reconciler,

		Stores: &Stores{
			files:   fileStore,
			storage: storage,
			cache:   cachingSvc,
		},
	}, nil
}

func resolveQueueURL(client *sqs.Client, cfg config.ServiceConfig) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(cfg.ReconcileQueueName),
	})
	if err != nil {
		return "", fmt.Errorf("resolve queue %s: %w", cfg.ReconcileQueueName, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (s *Services) Router(readiness handlers.ReadinessReporter, allowedOrigins []string, l logger.Logger) *chi.Mux {
	uploads := handlers.NewUploadsHandler(s.Sessions, s.Completion, s.Files, l.With("component", "http"))
	return handlers.Routers(uploads, handlers.NewHealthHandler(readiness), allowedOrigins, l.With("component", "http"))
}

func (s *Services) Shutdown(ctx context.Context) error {
	if s.Reconciler != nil {
		if err := s.Reconciler.Shutdown(ctx); err != nil {
			return fmt.Errorf("reconciler shutdown: %w", err)
		}
	}

	if s.Stores != nil {
		return s.Stores.Shutdown(ctx)
	}
	return nil
}

// checks lists the dependencies that gate readiness.
func (s *Stores) checks() []health.ReadinessCheck {
	checks := []health.ReadinessCheck{s.files, s.storage}
	if rc, ok := s.cache.(health.ReadinessCheck); ok {
		checks = append(checks, rc)
	}
	return checks
}

func (s *Stores) Shutdown(ctx context.Context) error {
	for _, v := range []any{s.files, s.storage} {
		if sh, ok := v.(Shutdowner); ok {
			if err := sh.Shutdown(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
