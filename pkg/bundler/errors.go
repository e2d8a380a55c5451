package bundler

import "errors"

var (
	// ErrBucketLimitExceeded is returned in strict mode when a bucket holds
	// more records than allowed.
	ErrBucketLimitExceeded = errors.New("bundler: bucket exceeds maximum number of records")

	// ErrNegativeWindow is returned when the distribution window is configured below zero days.
	ErrNegativeWindow = errors.New("bundler: retention days must not be negative")
)
