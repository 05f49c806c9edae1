package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createFilesTableQuery = `CREATE TABLE IF NOT EXISTS uploaded_files (
	file_id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	s3_key TEXT NOT NULL,
	upload_date TIMESTAMPTZ NOT NULL
);`
	insertFileQuery = `INSERT INTO uploaded_files (file_id, file_name, file_size, s3_key, upload_date) VALUES ($1, $2, $3, $4, $5);`
	listFilesQuery  = `SELECT file_id, file_name, file_size, s3_key, upload_date FROM uploaded_files ORDER BY upload_date DESC;`
)

type PgConnection interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type PostgresFileStoreImpl struct {
	conn PgConnection
}

func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err = p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping error: %w", err)
	}
	return p, nil
}

func NewPostgresFileStoreImpl(conn PgConnection) *PostgresFileStoreImpl {
	return &PostgresFileStoreImpl{
		conn: conn,
	}
}

func (s *PostgresFileStoreImpl) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, createFilesTableQuery); err != nil {
		return fmt.Errorf("creating uploaded_files table: %w", err)
	}
	return nil
}

func (s *PostgresFileStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return s.conn.Ping(ctx)
}

func (s *PostgresFileStoreImpl) Name() string {
	return "FileStore[postgres]"
}

func (s *PostgresFileStoreImpl) Create(ctx context.Context, file models.File) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.conn.Exec(ctx, insertFileQuery, file.FileId, file.Name, file.Size, file.S3Key, file.UploadDate)
	if err != nil {
		var pgErr *pgconn.PgError
		// unique violation: record already written by an earlier delivery
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return apperror.New("createFile", apperror.ErrMetadata, err).WithKey(file.S3Key)
	}
	return nil
}

func (s *PostgresFileStoreImpl) List(ctx context.Context) ([]models.File, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.conn.Query(ctx, listFilesQuery)
	if err != nil {
		return nil, apperror.New("listFiles", apperror.ErrMetadata, err)
	}
	defer rows.Close()

	files := make([]models.File, 0)
	for rows.Next() {
		var f models.File
		if err = rows.Scan(&f.FileId, &f.Name, &f.Size, &f.S3Key, &f.UploadDate); err != nil {
			return nil, apperror.New("listFiles", apperror.ErrMetadata, err)
		}
		files = append(files, f)
	}
	if err = rows.Err(); err != nil {
		return nil, apperror.New("listFiles", apperror.ErrMetadata, err)
	}
	return files, nil
}

func (s *PostgresFileStoreImpl) Shutdown(context.Context) error {
	s.conn.Close()
	return nil
}
