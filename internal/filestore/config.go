package filestore

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"stdimage/internal/models"
)

// FromConfig opens the backend selected by cfg.Backend.
func FromConfig(cfg models.StorageConfig) (Backend, error) {
	const op = "filestore.FromConfig"

	switch cfg.Backend {
	case "", "filesystem":
		fs, err := NewFileSystem(cfg.Path, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return fs, nil
	case "memory":
		return NewMemory(cfg.BaseURL), nil
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, models.NewConfigError(op + ": storage.s3.bucket is required")
		}
		awsCfg := aws.NewConfig()
		if cfg.S3.Region != "" {
			awsCfg = awsCfg.WithRegion(cfg.S3.Region)
		}
		if cfg.S3.Endpoint != "" {
			awsCfg = awsCfg.WithEndpoint(cfg.S3.Endpoint).WithS3ForcePathStyle(true)
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// a relative media path only makes sense for local files
		baseURL := cfg.BaseURL
		if !strings.HasPrefix(baseURL, "http") {
			baseURL = ""
		}
		return NewS3(cfg.S3.Bucket, cfg.S3.Prefix, baseURL, sess), nil
	}
	return nil, models.NewConfigError(fmt.Sprintf("%s: unknown storage backend %q", op, cfg.Backend))
}
