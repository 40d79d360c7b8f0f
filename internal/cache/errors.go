package cache

import "errors"

var (
	// ErrUnknownBackend is returned when the configured backend name is not
	// one of memory, file or redis.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrCorruptEntry is returned when a stored entry cannot be decoded.
	ErrCorruptEntry = errors.New("corrupt cache entry")

	// ErrNoDirectory is returned when a file cache is created without a directory.
	ErrNoDirectory = errors.New("file cache directory is not set")
)
