package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrBackend          = errors.New("storage backend error")
	ErrAssembly         = errors.New("multipart assembly rejected")
	ErrMetadata         = errors.New("metadata store error")
	ErrNotFound         = errors.New("not found")
	ErrChunkTransfer    = errors.New("chunk transfer failed")
	ErrUploadInProgress = errors.New("upload already in progress")
)

// User-facing messages. Every unrecovered failure collapses to one of these.
const (
	MsgUploadFailed = "failed to upload"
	MsgFetchFailed  = "failed to fetch"
)

// Error carries the failing operation and object key alongside a classified cause.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func New(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

// Unwrap exposes both the classification sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
