package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// LocalStorage keeps files on the local filesystem
type LocalStorage struct {
	basePath string
	logger   *logrus.Logger
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string, logger *logrus.Logger) *LocalStorage {
	if basePath == "" {
		basePath = "uploads"
	}
	return &LocalStorage{basePath: basePath, logger: logger}
}

// Save writes the content under basePath and returns the relative stored path
func (s *LocalStorage) Save(ctx context.Context, category, filename string, content io.Reader) (string, error) {
	name := objectName(category, filename)
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to copy data: %w", err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"path": name}).Debug("stored upload on local disk")
	}
	return name, nil
}
