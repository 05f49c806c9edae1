package models

import "time"

const (
	// ChunkSize is the fixed size of every chunk but the last.
	ChunkSize int64 = 5 * 1024 * 1024
	// MaxChunkCount is the backend limit on parts per multipart upload.
	MaxChunkCount = 10000

	DefaultContentType = "application/octet-stream"
)

// UploadSession represents a multipart upload opened on the storage backend.
// It is never stored server-side; the backend is the source of truth.
type UploadSession struct {
	UploadId    string
	ObjectKey   string
	ContentType string
	ChunkCount  int32
}

// ChunkAuthorization is a presigned URL allowing the upload of one part.
type ChunkAuthorization struct {
	PartNumber int32
	URL        string
	ExpiresAt  time.Time
}

// CompletedPart is the proof the backend returned for one stored part.
type CompletedPart struct {
	PartNumber int32  `json:"PartNumber" validate:"gte=1"`
	ETag       string `json:"ETag" validate:"required"`
}

type CreateMultipartRequest struct {
	FileName   string `json:"fileName" validate:"required"`
	FileType   string `json:"fileType"`
	ChunkCount int32  `json:"chunkCount" validate:"gt=0,lte=10000"`
}

type CreateMultipartResponse struct {
	UploadId      string   `json:"uploadId"`
	PreSignedUrls []string `json:"preSignedUrls"`
}

type CompleteMultipartRequest struct {
	FileName string          `json:"fileName" validate:"required"`
	UploadId string          `json:"uploadId" validate:"required"`
	Parts    []CompletedPart `json:"parts" validate:"required,min=1,dive"`
	FileSize int64           `json:"fileSize" validate:"gt=0"`
}

type CompleteMultipartResponse struct {
	Message     string `json:"message"`
	DownloadUrl string `json:"downloadUrl"`
}

type AbortMultipartRequest struct {
	FileName string `json:"fileName" validate:"required"`
	UploadId string `json:"uploadId" validate:"required"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
