package input

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
)

var _ InputClient = (*LocalUnixInputClient)(nil)

type LocalUnixInputClient struct {
	path            string
	knownExtensions []string
}

func NewLocalUnixInputClient(_ context.Context, loc client.Location, cfg *config.Config) (InputClient, error) {
	if loc.Storage != client.StorageLocal {
		return nil, fmt.Errorf("invalid storage type for LocalUnixInputClient")
	}

	return &LocalUnixInputClient{
		path:            loc.Path,
		knownExtensions: cfg.Input.KnownExtensions,
	}, nil
}

// Scan lists the page files directly inside the source directory.
// Subdirectories are not descended into.
func (c *LocalUnixInputClient) Scan(_ context.Context) ([]string, error) {
	filePaths := make([]string, 0)
	entries, err := os.ReadDir(c.path)
	if err != nil {
		return nil, fmt.Errorf("fail to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !client.HasKnownExtension(entry.Name(), c.knownExtensions) {
			slog.Debug("skip file with unknown extension", slog.String("path", c.path+entry.Name()))
			continue
		}
		filePaths = append(filePaths, entry.Name())
	}

	return filePaths, nil
}

func (c *LocalUnixInputClient) ReadMetadata(_ context.Context, path string) (*MetadataStruct, error) {
	fileInfo, err := os.Stat(c.path + path)
	if err != nil {
		return nil, fmt.Errorf("fail to read file info: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("'%s' is a directory", c.path+path)
	}

	return &MetadataStruct{
		Hash: strconv.FormatInt(fileInfo.ModTime().Unix(), 16) + "-" + strconv.FormatInt(fileInfo.Size(), 16),
	}, nil
}

func (c *LocalUnixInputClient) GetReader(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(c.path + path)
}

func (c *LocalUnixInputClient) ID(path string) string {
	return c.path + path
}
