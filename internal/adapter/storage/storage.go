package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/auditflow/auditflow/internal/ports"
)

// Config selects and configures the storage driver
type Config struct {
	Driver    string
	LocalDir  string
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectName builds a unique stored name that keeps the original file name readable
func objectName(category, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	return path.Join(category, uuid.NewString()+"-"+base)
}

// New creates the configured driver
func New(cfg Config, logger *logrus.Logger) (ports.FileStorage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir, logger), nil
	case "s3":
		return NewS3Storage(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
