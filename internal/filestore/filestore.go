// Package filestore is the storage backend contract used for originals and
// variations, with filesystem, in-memory and S3 implementations.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = errors.New("file not found")

// ErrInvalidKey is returned for keys that escape the storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// Backend stores files under slash-separated keys. Implementations must be
// safe for concurrent use on distinct keys.
type Backend interface {
	// Save writes r under key, replacing any existing file, and returns the
	// key actually used.
	Save(ctx context.Context, key string, r io.Reader) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Path returns the local filesystem path of key, or "" when the backend
	// has none.
	Path(key string) string

	URL(key string) string
}

// ReadAll reads the whole file stored under key.
func ReadAll(ctx context.Context, b Backend, key string) ([]byte, error) {
	const op = "filestore.ReadAll"

	rc, err := b.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

// CleanKey normalises key and rejects keys that leave the storage root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}
