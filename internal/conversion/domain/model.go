package domain

import (
	"context"
	"errors"
	"fmt"
	"io"

	quotadomain "github.com/smallbiznis/talechto/internal/quota/domain"
)

// Upload is the file part of a conversion request.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

type Request struct {
	PrincipalID string
	Decision    quotadomain.Decision
	Format      string
	Upload      *Upload
}

// Result is a finished conversion, fully buffered.
type Result struct {
	Filename         string
	Format           string
	ContentType      string
	Body             []byte
	RemainingCredits int
}

type Service interface {
	// Admit answers whether principalID may start a conversion now.
	Admit(ctx context.Context, principalID string) (quotadomain.Decision, error)
	Convert(ctx context.Context, req Request) (*Result, error)
}

// Converter turns the file at in into format at out.
type Converter interface {
	Convert(ctx context.Context, in, out, format string) error
}

var (
	ErrQuotaExceeded     = errors.New("quota_exceeded")
	ErrMissingFile       = errors.New("missing_file")
	ErrFileTooLarge      = errors.New("file_too_large")
	ErrUnsupportedFormat = errors.New("unsupported_format")
	ErrConversionFailed  = errors.New("conversion_failed")
)

// FileTooLargeError carries the measured size for the caller-facing message.
type FileTooLargeError struct {
	SizeBytes  int64
	LimitBytes int64
}

const mebibyte = 1024 * 1024

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("File too large (%.2f MB). Free tier limit is %d MB",
		float64(e.SizeBytes)/mebibyte, e.LimitBytes/mebibyte)
}

func (e *FileTooLargeError) Is(target error) bool {
	return target == ErrFileTooLarge
}
