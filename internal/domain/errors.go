package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBackingStore marks failures of the tabular store: missing, unreadable
	// or unwritable files and databases.
	ErrBackingStore = errors.New("backing store failure")

	// ErrPersistTimeout is returned when a full-file rewrite exceeds its
	// deadline. It wraps ErrBackingStore and is safe to retry.
	ErrPersistTimeout = fmt.Errorf("%w: persist timed out", ErrBackingStore)

	ErrUnknownDataset    = errors.New("unknown dataset")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrSheetNotFound     = errors.New("sheet not found")
)

// IsRetryable reports whether err is a backing-store failure the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistTimeout)
}
