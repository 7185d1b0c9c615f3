package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type fsStore struct {
	root   string
	logger *slog.Logger
}

// NewFSStore returns an ObjectStore backed by a directory tree. Keys are
// slash-separated relative paths under root.
func NewFSStore(root string, logger *slog.Logger) (ObjectStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &fsStore{root: root, logger: logger}, nil
}

func (s *fsStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *fsStore) GetObjectBuffer(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %q: %w", key, ErrNotFound)
		}
		s.logger.Error("fs store read failed", "key", key, "error", err)
		return nil, err
	}
	return b, nil
}

func (s *fsStore) PutObjectBuffer(_ context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("fs store write failed", "key", key, "error", err)
		return err
	}
	return nil
}
