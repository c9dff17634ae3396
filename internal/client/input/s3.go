package input

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
)

var _ InputClient = (*S3InputClient)(nil)

type S3InputClient struct {
	prefix          string
	bucketName      string
	s3cl            *minio.Client
	knownExtensions []string
}

func NewS3InputClient(_ context.Context, loc client.Location, cfg *config.Config) (InputClient, error) {
	if loc.Storage != client.StorageS3 {
		return nil, fmt.Errorf("invalid storage type for S3InputClient")
	}

	s3cl, err := client.NewS3(cfg.Storage.S3)
	if err != nil {
		return nil, err
	}

	return &S3InputClient{s3cl: s3cl, bucketName: loc.Bucket, prefix: loc.Prefix, knownExtensions: cfg.Input.KnownExtensions}, nil
}

// Scan lists the objects directly below the prefix.
func (c *S3InputClient) Scan(ctx context.Context) ([]string, error) {
	filePaths := []string{}

	for obj := range c.s3cl.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{Prefix: c.prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("iterate over S3 objects: %w", obj.Err)
		}

		name := strings.TrimPrefix(obj.Key, c.prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if !client.HasKnownExtension(name, c.knownExtensions) {
			continue
		}

		filePaths = append(filePaths, name)
	}

	return filePaths, nil
}

func (c *S3InputClient) ReadMetadata(ctx context.Context, path string) (*MetadataStruct, error) {
	info, err := c.s3cl.StatObject(ctx, c.bucketName, c.prefix+path, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get attributes for object: %w", err)
	}

	return &MetadataStruct{Hash: strings.Trim(info.ETag, `"`)}, nil
}

func (c *S3InputClient) GetReader(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := c.s3cl.GetObject(ctx, c.bucketName, c.prefix+path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fail to open S3 object: %w", err)
	}
	return obj, nil
}

func (c *S3InputClient) ID(path string) string {
	return fmt.Sprintf("s3://%s/%s%s", c.bucketName, c.prefix, path)
}
