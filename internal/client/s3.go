package client

import (
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/unb-libraries/NBNDProcessor/config"
)

// NewS3 builds a minio client for any S3-compatible endpoint. Empty static
// keys fall back to the standard AWS/MinIO environment variables.
func NewS3(cfg *config.S3Config) (*minio.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no S3 endpoint configured")
	}

	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	if cfg.AccessKeyID == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}

	s3cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to initialize S3 client for '%s': %w", cfg.Endpoint, err)
	}

	return s3cl, nil
}
