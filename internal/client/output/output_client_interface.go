package output

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
)

// sourceHashKey names the attribute recording which source revision an
// output was produced from.
const sourceHashKey = "nbnd-source-hash"

// OutputClient writes the batch tree below a target location. An output only
// becomes visible, with its source hash recorded, once its writer is closed
// without error.
type OutputClient interface {
	GetWriter(ctx context.Context, path string, inputMetadata *input.MetadataStruct, contentType string) (io.WriteCloser, error)
	ReadMetadata(ctx context.Context, path string) (*MetadataStruct, error)
	IsMissing(ctx context.Context, path string) bool
	ID(path string) string
}

// MetadataStruct holds what an output records about its provenance.
// HashOriginal is empty when the output carries no source hash.
type MetadataStruct struct {
	HashOriginal string
}

var NewOutputClientMap = map[string]func(ctx context.Context, loc client.Location, cfg *config.Config) (OutputClient, error){
	client.StorageLocal: NewLocalUnixOutputClient,
	client.StorageB2:    NewB2OutputClient,
	client.StorageS3:    NewS3OutputClient,
}

func New(ctx context.Context, loc client.Location, cfg *config.Config) (OutputClient, error) {
	newClient, ok := NewOutputClientMap[loc.Storage]
	if !ok {
		return nil, fmt.Errorf("unsupported output storage type: %s", loc.Storage)
	}
	return newClient(ctx, loc, cfg)
}

func sourceHash(inputMetadata *input.MetadataStruct) string {
	if inputMetadata == nil {
		return ""
	}
	return inputMetadata.Hash
}

// lookupFold finds key in metadata maps whose keys may have been
// canonicalized by an HTTP layer.
func lookupFold(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) || strings.EqualFold(strings.ReplaceAll(k, "_", "-"), key) {
			return v
		}
	}
	return ""
}

// Abort discards a writer obtained from GetWriter without committing it.
func Abort(w io.WriteCloser) {
	if a, ok := w.(interface{ Abort() }); ok {
		a.Abort()
		return
	}
	w.Close()
}
