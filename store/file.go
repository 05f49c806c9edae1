package store

import (
	"context"
	"sort"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/Yulian302/lfusys-services-uploads/health"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/retries"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// FileStore persists records of finalized uploads.
type FileStore interface {
	Create(ctx context.Context, file models.File) error
	// List returns all records ordered by upload date, newest first.
	List(ctx context.Context) ([]models.File, error)

	health.ReadinessCheck
}

type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

type DynamoDbFileStoreImpl struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDbFileStoreImpl(client DynamoDBAPI, tableName string) *DynamoDbFileStoreImpl {
	return &DynamoDbFileStoreImpl{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoDbFileStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})

	return err
}

func (s *DynamoDbFileStoreImpl) Name() string {
	return "FileStore[dynamodb:" + s.tableName + "]"
}

func (s *DynamoDbFileStoreImpl) Create(ctx context.Context, file models.File) error {
	fileItem, err := attributevalue.MarshalMap(file)
	if err != nil {
		return apperror.New("createFile", apperror.ErrMetadata, err).WithKey(file.S3Key)
	}

	err = retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           aws.String(s.tableName),
				Item:                fileItem,
				ConditionExpression: aws.String("attribute_not_exists(file_id)"),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
	if errorCode(err) == "ConditionalCheckFailedException" {
		// record already written by an earlier delivery
		return nil
	}
	if err != nil {
		return apperror.New("createFile", apperror.ErrMetadata, err).WithKey(file.S3Key)
	}
	return nil
}

func (s *DynamoDbFileStoreImpl) List(ctx context.Context) ([]models.File, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})

	files := make([]models.File, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperror.New("listFiles", apperror.ErrMetadata, err)
		}

		var batch []models.File
		if err = attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, apperror.New("listFiles", apperror.ErrMetadata, err)
		}
		files = append(files, batch...)
	}

	SortNewestFirst(files)
	return files, nil
}

// SortNewestFirst orders records by upload date descending.
func SortNewestFirst(files []models.File) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].UploadDate.After(files[j].UploadDate)
	})
}
