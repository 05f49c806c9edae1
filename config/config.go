package config

import (
	"errors"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

const (
	// DefaultUploadURLExpiry bounds how long a presigned chunk URL stays valid.
	DefaultUploadURLExpiry = 3 * time.Hour
	// DefaultDownloadURLExpiry bounds how long a listed download URL stays valid.
	DefaultDownloadURLExpiry = 1 * time.Hour
)

const (
	StorageS3    = "s3"
	StorageMinio = "minio"

	MetadataDynamoDB = "dynamodb"
	MetadataPostgres = "postgres"
)

type AWSConfig struct {
	Region          string
	AccountID       string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c AWSConfig) Validate() error {
	if c.Region == "" {
		return errors.New("AWS_REGION is required")
	}
	return nil
}

type S3Config struct {
	BucketName        string
	ConfigureCORS     bool
	AllowedOrigins    []string
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration
}

type StorageConfig struct {
	Backend        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool
}

type MetadataConfig struct {
	Driver         string
	FilesTableName string
	PostgresDSN    string
}

type RedisConfig struct {
	HOST    string
	Enabled bool
}

type ServiceConfig struct {
	HTTPAddr           string
	ReconcileQueueName string
}

type Config struct {
	Env         string
	Tracing     bool
	TracingAddr string

	AWSConfig      *AWSConfig
	S3Config       *S3Config
	StorageConfig  *StorageConfig
	MetadataConfig *MetadataConfig
	RedisConfig    *RedisConfig
	ServiceConfig  *ServiceConfig
}

func (c Config) Validate() error {
	if c.S3Config.BucketName == "" {
		return errors.New("S3_BUCKET_NAME is required")
	}
	switch c.StorageConfig.Backend {
	case StorageS3:
		if err := c.AWSConfig.Validate(); err != nil {
			return err
		}
	case StorageMinio:
		if c.StorageConfig.MinioEndpoint == "" {
			return errors.New("MINIO_ENDPOINT is required for the minio backend")
		}
	default:
		return errors.New("unknown STORAGE_BACKEND " + c.StorageConfig.Backend)
	}
	switch c.MetadataConfig.Driver {
	case MetadataDynamoDB:
		if err := c.AWSConfig.Validate(); err != nil {
			return err
		}
	case MetadataPostgres:
		if c.MetadataConfig.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres metadata driver")
		}
	default:
		return errors.New("unknown METADATA_DRIVER " + c.MetadataConfig.Driver)
	}
	if c.S3Config.UploadURLExpiry <= 0 || c.S3Config.DownloadURLExpiry <= 0 {
		return errors.New("presigned url expiry must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("TRACING", false)
	v.SetDefault("TRACING_ADDR", "localhost:4318")

	v.SetDefault("AWS_REGION", "us-east-1")

	v.SetDefault("S3_CONFIGURE_CORS", false)
	v.SetDefault("S3_ALLOWED_ORIGINS", "*")
	v.SetDefault("S3_UPLOAD_URL_EXPIRY", DefaultUploadURLExpiry)
	v.SetDefault("S3_DOWNLOAD_URL_EXPIRY", DefaultDownloadURLExpiry)

	v.SetDefault("STORAGE_BACKEND", StorageS3)
	v.SetDefault("MINIO_SECURE", false)

	v.SetDefault("METADATA_DRIVER", MetadataDynamoDB)
	v.SetDefault("DYNAMODB_FILES_TABLE", "files")

	v.SetDefault("REDIS_HOST", "localhost:6379")
	v.SetDefault("REDIS_ENABLED", true)

	v.SetDefault("HTTP_ADDR", ":8080")
}

// LoadConfig reads the process environment (and a .env file, if present).
func LoadConfig() Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Env:         v.GetString("ENV"),
		Tracing:     v.GetBool("TRACING"),
		TracingAddr: v.GetString("TRACING_ADDR"),

		AWSConfig: &AWSConfig{
			Region:          v.GetString("AWS_REGION"),
			AccountID:       v.GetString("AWS_ACCOUNT_ID"),
			Endpoint:        v.GetString("AWS_ENDPOINT_URL"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		},
		S3Config: &S3Config{
			BucketName:        v.GetString("S3_BUCKET_NAME"),
			ConfigureCORS:     v.GetBool("S3_CONFIGURE_CORS"),
			AllowedOrigins:    splitList(v.GetString("S3_ALLOWED_ORIGINS")),
			UploadURLExpiry:   v.GetDuration("S3_UPLOAD_URL_EXPIRY"),
			DownloadURLExpiry: v.GetDuration("S3_DOWNLOAD_URL_EXPIRY"),
		},
		StorageConfig: &StorageConfig{
			Backend:        strings.ToLower(v.GetString("STORAGE_BACKEND")),
			MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
			MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
			MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
			MinioSecure:    v.GetBool("MINIO_SECURE"),
		},
		MetadataConfig: &MetadataConfig{
			Driver:         strings.ToLower(v.GetString("METADATA_DRIVER")),
			FilesTableName: v.GetString("DYNAMODB_FILES_TABLE"),
			PostgresDSN:    v.GetString("POSTGRES_DSN"),
		},
		RedisConfig: &RedisConfig{
			HOST:    v.GetString("REDIS_HOST"),
			Enabled: v.GetBool("REDIS_ENABLED"),
		},
		ServiceConfig: &ServiceConfig{
			HTTPAddr:           v.GetString("HTTP_ADDR"),
			ReconcileQueueName: v.GetString("RECONCILE_QUEUE_NAME"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
