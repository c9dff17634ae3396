package input

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Backblaze/blazer/b2"
	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
)

var _ InputClient = (*B2InputClient)(nil)

type B2InputClient struct {
	prefix          string
	bucket          *b2.Bucket
	bucketName      string
	b2cl            *b2.Client
	knownExtensions []string
}

func NewB2InputClient(ctx context.Context, loc client.Location, cfg *config.Config) (InputClient, error) {
	if loc.Storage != client.StorageB2 {
		return nil, fmt.Errorf("invalid storage type for B2InputClient")
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

	return &B2InputClient{b2cl: b2cl, bucket: bucket, bucketName: loc.Bucket, prefix: loc.Prefix, knownExtensions: cfg.Input.KnownExtensions}, nil
}

// Scan lists the uploaded objects directly below the prefix.
func (c *B2InputClient) Scan(ctx context.Context) ([]string, error) {
	filePaths := []string{}

	iter := c.bucket.List(ctx, b2.ListPrefix(c.prefix), b2.ListDelimiter("/"))

	for iter.Next() {
		obj := iter.Object()
		if obj == nil {
			return nil, fmt.Errorf("failed to reference object in B2 bucket")
		}

		attrs, err := obj.Attrs(ctx)
		if err != nil {
			return nil, fmt.Errorf("get attributes for object: %w", err)
		}

		if attrs.Status != b2.Uploaded {
			continue
		}

		name := strings.TrimPrefix(obj.Name(), c.prefix)
		if !client.HasKnownExtension(name, c.knownExtensions) {
			continue
		}

		filePaths = append(filePaths, name)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("iterate over B2 objects: %w", err)
	}

	return filePaths, nil
}

func (c *B2InputClient) ReadMetadata(ctx context.Context, path string) (*MetadataStruct, error) {
	obj := c.bucket.Object(c.prefix + path)
	if obj == nil {
		return nil, fmt.Errorf("object not found in B2 bucket")
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get attributes for object: %w", err)
	}

	if attrs.Status != b2.Uploaded {
		return nil, fmt.Errorf("object '%s' is not an uploaded file", attrs.Name)
	}

	// Large files uploaded in parts carry no whole-file SHA1.
	hash := attrs.SHA1
	if hash == "" || hash == "none" {
		hash = fmt.Sprintf("%x-%x", attrs.UploadTimestamp.Unix(), attrs.Size)
	}

	return &MetadataStruct{Hash: hash}, nil
}

func (c *B2InputClient) ID(path string) string {
	return fmt.Sprintf("b2://%s/%s%s", c.bucketName, c.prefix, path)
}

func (c *B2InputClient) GetReader(ctx context.Context, path string) (io.ReadCloser, error) {
	obj := c.bucket.Object(c.prefix + path)
	if obj == nil {
		return nil, fmt.Errorf("failed to reference object in B2 bucket")
	}

	return obj.NewReader(ctx), nil
}
