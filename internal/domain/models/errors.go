package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the import pipeline and upload sessions.
// Callers match with errors.Is; handlers map them to HTTP status codes.
var (
	ErrNotFound            = errors.New("not found")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrIncompleteUpload    = errors.New("upload incomplete")
	ErrSizeMismatch        = errors.New("size mismatch")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrInvalidFormat       = errors.New("invalid format")
	ErrDuplicateImport     = errors.New("duplicate import")
	ErrNotCompleted        = errors.New("import not completed")
)

// ValidationError aggregates all hard validation failures for a file.
// Warnings never end up here; they are carried on the record instead.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Reasons, "; "))
}

// Is allows errors.Is(err, &ValidationError{}) style matching via target type.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}
