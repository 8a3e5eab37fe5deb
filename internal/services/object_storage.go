package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploader stores named objects. Keys are slash-separated.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// ErrObjectNotFound is returned by Download for a key that was never uploaded.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorageService is a directory-backed Uploader. Objects are written to
// a temporary name first and renamed into place, so readers never see a
// partial object.
type ObjectStorageService struct {
	storageDir string
}

func NewObjectStorageService(storageDir string) (*ObjectStorageService, error) {
	if storageDir == "" {
		storageDir = "./data/objects"
	}
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object storage directory: %w", err)
	}
	return &ObjectStorageService{storageDir: storageDir}, nil
}

func (s *ObjectStorageService) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.storageDir, clean), nil
}

func (s *ObjectStorageService) Upload(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(target, data); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return data, nil
}

// writeFileAtomic writes data next to path under a random name and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := filepath.Join(dir, "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
