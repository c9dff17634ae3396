package input

import (
	"context"
	"fmt"
	"io"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
)

// InputClient lists and reads page scans below a source location. Paths
// passed to and returned by a client are relative to that location.
type InputClient interface {
	Scan(ctx context.Context) ([]string, error)
	ReadMetadata(ctx context.Context, path string) (*MetadataStruct, error)
	GetReader(ctx context.Context, path string) (io.ReadCloser, error)
	ID(path string) string
}

// MetadataStruct describes a source revision. Hash changes whenever the
// source content does.
type MetadataStruct struct {
	Hash string
}

var NewInputClientMap = map[string]func(ctx context.Context, loc client.Location, cfg *config.Config) (InputClient, error){
	client.StorageLocal: NewLocalUnixInputClient,
	client.StorageB2:    NewB2InputClient,
	client.StorageS3:    NewS3InputClient,
}

func New(ctx context.Context, loc client.Location, cfg *config.Config) (InputClient, error) {
	newClient, ok := NewInputClientMap[loc.Storage]
	if !ok {
		return nil, fmt.Errorf("unsupported input storage type: %s", loc.Storage)
	}
	return newClient(ctx, loc, cfg)
}
