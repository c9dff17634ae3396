package output

import (
	"context"
	"fmt"
	"io"

	"github.com/Backblaze/blazer/b2"
	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
)

var _ OutputClient = (*B2OutputClient)(nil)

// B2 file info names may not contain dashes in every client library.
const b2SourceHashKey = "nbnd_source_hash"

type B2OutputClient struct {
	prefix     string
	bucket     *b2.Bucket
	bucketName string
	b2cl       *b2.Client
}

func NewB2OutputClient(ctx context.Context, loc client.Location, cfg *config.Config) (OutputClient, error) {
	if loc.Storage != client.StorageB2 {
		return nil, fmt.Errorf("invalid storage type for B2OutputClient")
	}
	if cfg.Storage.B2 == nil {
		return nil, fmt.Errorf("no B2 credentials configured for '%s'", loc)
	}

	b2cl, err := b2.NewClient(ctx, cfg.Storage.B2.KeyID, cfg.Storage.B2.ApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("fail to authorize B2 client: %w", err)
	}

	bucket, err := b2cl.Bucket(ctx, loc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("fail to open B2 bucket '%s': %w", loc.Bucket, err)
	}

	return &B2OutputClient{b2cl: b2cl, bucket: bucket, bucketName: loc.Bucket, prefix: loc.Prefix}, nil
}

func (c *B2OutputClient) GetWriter(ctx context.Context, path string, inputMetadata *input.MetadataStruct, contentType string) (io.WriteCloser, error) {
	obj := c.bucket.Object(c.prefix + path)
	if obj == nil {
		return nil, fmt.Errorf("failed to reference object in B2 bucket")
	}

	attrs := &b2.Attrs{ContentType: contentType, Info: map[string]string{}}
	if hash := sourceHash(inputMetadata); hash != "" {
		attrs.Info[b2SourceHashKey] = hash
	}

	ctx, cancel := context.WithCancel(ctx)
	return &b2Writer{Writer: obj.NewWriter(ctx, b2.WithAttrsOption(attrs)), cancel: cancel}, nil
}

func (c *B2OutputClient) ReadMetadata(ctx context.Context, path string) (*MetadataStruct, error) {
	obj := c.bucket.Object(c.prefix + path)
	if obj == nil {
		return nil, fmt.Errorf("failed to reference object in B2 bucket")
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get attributes for object: %w", err)
	}

	return &MetadataStruct{HashOriginal: lookupFold(attrs.Info, b2SourceHashKey)}, nil
}

func (c *B2OutputClient) IsMissing(ctx context.Context, path string) bool {
	obj := c.bucket.Object(c.prefix + path)
	if obj == nil {
		return true
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return true
	}

	return attrs.Status != b2.Uploaded
}

func (c *B2OutputClient) ID(path string) string {
	return fmt.Sprintf("b2://%s/%s%s", c.bucketName, c.prefix, path)
}

type b2Writer struct {
	*b2.Writer
	cancel context.CancelFunc
}

func (w *b2Writer) Close() error {
	defer w.cancel()
	return w.Writer.Close()
}

// Abort cancels the upload so no object is committed.
func (w *b2Writer) Abort() {
	w.cancel()
	w.Writer.Close()
}
