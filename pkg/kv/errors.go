package kv

import "errors"

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: key not found")
	// ErrLocked is returned when another holder owns a lock.
	ErrLocked = errors.New("kv: lock held by another run")
	// ErrLockLost is returned when releasing a lock that expired or was taken over.
	ErrLockLost = errors.New("kv: lock no longer held")
)
