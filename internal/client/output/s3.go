package output

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
)

var _ OutputClient = (*S3OutputClient)(nil)

type S3OutputClient struct {
	prefix     string
	bucketName string
	s3cl       *minio.Client
}

func NewS3OutputClient(_ context.Context, loc client.Location, cfg *config.Config) (OutputClient, error) {
	if loc.Storage != client.StorageS3 {
		return nil, fmt.Errorf("invalid storage type for S3OutputClient")
	}

	s3cl, err := client.NewS3(cfg.Storage.S3)
	if err != nil {
		return nil, err
	}

	return &S3OutputClient{s3cl: s3cl, bucketName: loc.Bucket, prefix: loc.Prefix}, nil
}

// GetWriter buffers the object and uploads it with its size on Close, so an
// aborted page never leaves a partial object behind.
func (c *S3OutputClient) GetWriter(ctx context.Context, path string, inputMetadata *input.MetadataStruct, contentType string) (io.WriteCloser, error) {
	opts := minio.PutObjectOptions{ContentType: contentType, UserMetadata: map[string]string{}}
	if hash := sourceHash(inputMetadata); hash != "" {
		opts.UserMetadata[sourceHashKey] = hash
	}

	return &s3Writer{ctx: ctx, s3cl: c.s3cl, bucketName: c.bucketName, key: c.prefix + path, opts: opts}, nil
}

func (c *S3OutputClient) ReadMetadata(ctx context.Context, path string) (*MetadataStruct, error) {
	info, err := c.s3cl.StatObject(ctx, c.bucketName, c.prefix+path, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get attributes for object: %w", err)
	}

	return &MetadataStruct{HashOriginal: lookupFold(info.UserMetadata, sourceHashKey)}, nil
}

func (c *S3OutputClient) IsMissing(ctx context.Context, path string) bool {
	_, err := c.s3cl.StatObject(ctx, c.bucketName, c.prefix+path, minio.StatObjectOptions{})
	return err != nil
}

func (c *S3OutputClient) ID(path string) string {
	return fmt.Sprintf("s3://%s/%s%s", c.bucketName, c.prefix, path)
}

type s3Writer struct {
	ctx        context.Context
	s3cl       *minio.Client
	bucketName string
	key        string
	opts       minio.PutObjectOptions
	buf        bytes.Buffer
	closed     bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed S3 writer")
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.s3cl.PutObject(w.ctx, w.bucketName, w.key, bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len()), w.opts)
	w.buf.Reset()
	if err != nil {
		return fmt.Errorf("fail to upload object: %w", err)
	}
	return nil
}

// Abort drops the buffered object without uploading it.
func (w *s3Writer) Abort() {
	w.closed = true
	w.buf.Reset()
}
