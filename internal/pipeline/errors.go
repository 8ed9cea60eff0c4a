package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why one file failed to convert.
type Kind string

const (
	KindParseFailed       Kind = "parse_failed"
	KindNoImages          Kind = "no_images"
	KindCompressionFailed Kind = "compression_failed"
	KindCancelled         Kind = "cancelled"
	KindUnexpected        Kind = "unexpected"
)

var (
	// ErrBusy is returned when a batch is already running on the pipeline.
	ErrBusy = errors.New("conversion already in progress")

	// ErrNoImages is wrapped by FileError for books without any image.
	ErrNoImages = errors.New("no images found in EPUB")
)

// FileError is a per-file failure. It never aborts the batch.
type FileError struct {
	Kind Kind
	File string
	Err  error
}

func (e *FileError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *FileError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the failure kind carried by err, or KindUnexpected.
func KindOf(err error) Kind {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnexpected
}
