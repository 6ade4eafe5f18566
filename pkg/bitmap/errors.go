package bitmap

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound       = errors.New("bitmap: file not found")
	ErrTruncatedHeader    = errors.New("bitmap: truncated header")
	ErrUnsupportedFormat  = errors.New("bitmap: unsupported format")
	ErrOutOfMemory        = errors.New("bitmap: pixel buffer exceeds limit")
	ErrTruncatedPixelData = errors.New("bitmap: truncated pixel data")
	ErrTrailingData       = errors.New("bitmap: residual bytes after pixel data")
	ErrCannotCreateFile   = errors.New("bitmap: cannot create file")
	ErrWriteError         = errors.New("bitmap: write failed")
)

// FormatError reports which header field failed validation.
type FormatError struct {
	Field string
	Got   int64
	Want  int64
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("bitmap: unsupported %s: got %d, want %d", e.Field, e.Got, e.Want)
}

func (e *FormatError) Unwrap() error {
	return ErrUnsupportedFormat
}
