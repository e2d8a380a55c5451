package objectstore

import "errors"

var (
	ErrNotFound          = errors.New("object not found")
	ErrBucketMissing     = errors.New("bucket does not exist")
	ErrOperationFailed   = errors.New("object store operation failed")
	ErrThresholdExceeded = errors.New("too many failed object store operations")
)
