package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"stdimage/internal/logging"
)

// FileSystem stores files below a root directory and serves them under
// BaseURL.
type FileSystem struct {
	root    string
	baseURL string
	log     logging.Logger
}

var _ Backend = (*FileSystem)(nil)

func NewFileSystem(root, baseURL string) (*FileSystem, error) {
	const op = "filestore.NewFileSystem"

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &FileSystem{
		root:    root,
		baseURL: baseURL,
		log:     logging.GetLogger("filestore.filesystem").With(logging.Group("repo", "root", root)),
	}, nil
}

func (fs *FileSystem) filename(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(key)), nil
}

// Save writes to a temporary file in the target directory and renames it
// into place, so readers never observe a partial file.
func (fs *FileSystem) Save(ctx context.Context, key string, r io.Reader) (used string, err error) {
	const op = "filestore.FileSystem.Save"

	defer func() {
		log := fs.log.With(logging.Group("file", "key", key))
		if err != nil {
			log.ErrorContext(ctx, "file save failed", "error", err)
		} else {
			log.DebugContext(ctx, "file saved")
		}
	}()

	key, err = CleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	filename := filepath.Join(fs.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return "", fmt.Errorf("%s: mkdir all: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%s: create temp: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%s: close: %w", op, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("%s: chmod: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return "", fmt.Errorf("%s: rename: %w", op, err)
	}
	return key, nil
}

func (fs *FileSystem) Open(_ context.Context, key string) (io.ReadCloser, error) {
	const op = "filestore.FileSystem.Open"

	filename, err := fs.filename(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, key)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

func (fs *FileSystem) Delete(ctx context.Context, key string) (err error) {
	const op = "filestore.FileSystem.Delete"

	defer func() {
		log := fs.log.With(logging.Group("file", "key", key))
		if err != nil {
			log.ErrorContext(ctx, "file delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "file deleted")
		}
	}()

	filename, err := fs.filename(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (fs *FileSystem) Exists(_ context.Context, key string) (bool, error) {
	const op = "filestore.FileSystem.Exists"

	filename, err := fs.filename(key)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	_, err = os.Stat(filename)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	}
	return false, fmt.Errorf("%s: %w", op, err)
}

func (fs *FileSystem) Path(key string) string {
	filename, err := fs.filename(key)
	if err != nil {
		return ""
	}
	return filename
}

func (fs *FileSystem) URL(key string) string {
	return joinURL(fs.baseURL, key)
}
