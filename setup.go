package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/config"
	"github.com/Yulian302/lfusys-services-uploads/health"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/store"
	"github.com/Yulian302/lfusys-services-uploads/tracing"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "uploads"

type App struct {
	Server    *http.Server
	Readiness *health.Monitor

	S3       *s3.Client
	Minio    *minio.Core
	DynamoDB *dynamodb.Client
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Sqs      *sqs.Client

	Config    config.Config
	AwsConfig aws.Config

	Services       *Services
	TracerProvider *trace.TracerProvider
	Logger         logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger := logger.NewSlogLogger(logger.CreateAppLogger(cfg.Env))

	app := &App{
		Config: cfg,
		Logger: appLogger,
	}

	if cfg.StorageConfig.Backend == config.StorageS3 || cfg.MetadataConfig.Driver == config.MetadataDynamoDB || cfg.ServiceConfig.ReconcileQueueName != "" {
		awsCfg, err := initAWS(*cfg.AWSConfig)
		if err != nil {
			return nil, err
		}
		app.AwsConfig = awsCfg
	}

	switch cfg.StorageConfig.Backend {
	case config.StorageMinio:
		core, err := initMinio(*cfg.StorageConfig)
		if err != nil {
			return nil, err
		}
		app.Minio = core
	default:
		app.S3 = initS3(app.AwsConfig, cfg.AWSConfig.Endpoint != "")
	}

	switch cfg.MetadataConfig.Driver {
	case config.MetadataPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := initPostgres(ctx, *cfg.MetadataConfig)
		if err != nil {
			return nil, err
		}
		app.Postgres = pool
	default:
		app.DynamoDB = initDynamo(app.AwsConfig)
	}

	if cfg.RedisConfig.Enabled {
		app.Redis = initRedis(*cfg.RedisConfig)
	}

	if cfg.ServiceConfig.ReconcileQueueName != "" {
		app.Sqs = initSqs(app.AwsConfig)
	}

	if app.Config.Tracing {
		tp, err := tracing.InitTracer(context.Background(), serviceName, cfg.TracingAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		appLogger.Info("tracing enabled", "addr", cfg.TracingAddr)

		app.TracerProvider = tp
	}

	services, err := BuildServices(app)
	if err != nil {
		return nil, err
	}
	app.Services = services
	app.prepareServer()

	return app, nil
}

// prepareServer builds everything Run and Shutdown share and starts the
// reconciler, so Shutdown never observes a half-started app.
func (a *App) prepareServer() {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.Readiness = health.NewMonitor(a.Services.Stores.checks(), health.DefaultInterval, health.DefaultTimeout, a.Logger)
	a.Server = &http.Server{
		Addr:              a.Config.ServiceConfig.HTTPAddr,
		Handler:           otelhttp.NewHandler(a.RegisterHandlers(), serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.Services.Reconciler != nil {
		a.Services.Reconciler.Start()
	}
}

func (a *App) Run() error {
	if err := a.bootstrapBucket(a.ctx); err != nil {
		return err
	}

	go a.Readiness.Run(a.ctx)

	a.Logger.Info("http server started", "addr", a.Config.ServiceConfig.HTTPAddr)
	if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// bootstrapBucket applies the CORS rules browsers need to read part ETags.
func (a *App) bootstrapBucket(ctx context.Context) error {
	if !a.Config.S3Config.ConfigureCORS {
		return nil
	}
	configurer, ok := a.Services.Stores.storage.(interface {
		ConfigureCORS(ctx context.Context, origins []string) error
	})
	if !ok {
		a.Logger.Warn("storage backend does not support CORS configuration", "backend", a.Config.StorageConfig.Backend)
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := configurer.ConfigureCORS(cctx, a.Config.S3Config.AllowedOrigins); err != nil {
		return fmt.Errorf("configure bucket cors: %w", err)
	}
	a.Logger.Info("bucket cors configured", "bucket", a.Config.S3Config.BucketName, "origins", a.Config.S3Config.AllowedOrigins)
	return nil
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}

func initS3(cfg aws.Config, pathStyle bool) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	})
}

func initMinio(cfg config.StorageConfig) (*minio.Core, error) {
	core, err := store.NewMinioCore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioSecure)
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return core, nil
}

func initDynamo(cfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg)
}

func initPostgres(ctx context.Context, cfg config.MetadataConfig) (*pgxpool.Pool, error) {
	pool, err := store.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	return pool, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.HOST,
		Password: "",
		DB:       0,
	})
}

func initSqs(cfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(cfg)
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("starting graceful shutdown")

	if a.cancel != nil {
		a.cancel()
	}

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Error("http server shutdown error", "error", err)
			_ = a.Server.Close() // force
		}
	}

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			a.Logger.Error("services shutdown error", "error", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			a.Logger.Error("tracer shutdown error", "error", err)
		}
	}

	a.Logger.Info("graceful shutdown complete")
	return nil
}

func (a *App) RegisterHandlers() http.Handler {
	return a.Services.Router(a.Readiness, a.Config.S3Config.AllowedOrigins, a.Logger)
}
