package storage

import (
	"errors"
	"fmt"

	"github.com/creatorengine/creatorengine/internal/pkg/env"
)

// Config holds object storage configuration. Sources and rendered variants
// live in the same bucket under uploads/ and outputs/ prefixes.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("S3_STORAGE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 storage is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 storage is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 storage is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if S3 storage is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// SourceObjectKey builds the object key for an uploaded source file. All of a
// user's sources live under their own prefix so ownership checks stay cheap.
func (c *Config) SourceObjectKey(userID uint, fileName string) string {
	return fmt.Sprintf("uploads/%d/%s", userID, fileName)
}

// OutputObjectKey builds the object key for a job's rendered output archive.
func (c *Config) OutputObjectKey(jobUUID string) string {
	return fmt.Sprintf("outputs/%s/variants.zip", jobUUID)
}
