package models

import "time"

// File is the persisted metadata of a finalized upload.
type File struct {
	FileId     string    `dynamodbav:"file_id" json:"-"`             // Unique record identifier
	Name       string    `dynamodbav:"file_name" json:"file_name"`   // Destination name used for the upload
	Size       int64     `dynamodbav:"file_size" json:"file_size"`   // Total size in bytes
	S3Key      string    `dynamodbav:"s3Key" json:"s3Key"`           // Object key in the bucket
	UploadDate time.Time `dynamodbav:"uploadDate" json:"uploadDate"` // Time of finalization
}

// FileWithURL is a listing entry carrying a freshly minted download URL.
type FileWithURL struct {
	File
	DownloadURL string `json:"downloadUrl"`
}

// PendingRecordEvent is queued when an assembled object could not be recorded.
type PendingRecordEvent struct {
	FileId     string    `json:"file_id"`
	Name       string    `json:"file_name"`
	Size       int64     `json:"file_size"`
	S3Key      string    `json:"s3Key"`
	UploadDate time.Time `json:"uploadDate"`
}

func (e PendingRecordEvent) File() File {
	return File{
		FileId:     e.FileId,
		Name:       e.Name,
		Size:       e.Size,
		S3Key:      e.S3Key,
		UploadDate: e.UploadDate,
	}
}

func NewPendingRecordEvent(f File) PendingRecordEvent {
	return PendingRecordEvent{
		FileId:     f.FileId,
		Name:       f.Name,
		Size:       f.Size,
		S3Key:      f.S3Key,
		UploadDate: f.UploadDate,
	}
}
