package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
	"golang.org/x/sys/unix"
)

var _ OutputClient = (*LocalUnixOutputClient)(nil)

const xattrSourceHash = "user." + sourceHashKey

type LocalUnixOutputClient struct {
	path     string
	fileMode uint32
	dirMode  uint32
	attrMode string
}

func NewLocalUnixOutputClient(_ context.Context, loc client.Location, cfg *config.Config) (OutputClient, error) {
	if loc.Storage != client.StorageLocal {
		return nil, fmt.Errorf("invalid storage type for LocalUnixOutputClient")
	}

	fpm, err := strconv.ParseInt(cfg.Output.FilePermissionMode, 8, 32)
	if err != nil {
		return nil, fmt.Errorf("fail to parse file permission mode as an octal number: %w", err)
	}

	dpm, err := strconv.ParseInt(cfg.Output.DirPermissionMode, 8, 32)
	if err != nil {
		return nil, fmt.Errorf("fail to parse directory permission mode as an octal number: %w", err)
	}

	switch cfg.Output.AttributesImplementation {
	case "xattr", "none":
	default:
		return nil, fmt.Errorf("unknown attributes implementation: %s", cfg.Output.AttributesImplementation)
	}

	return &LocalUnixOutputClient{loc.Path, uint32(fpm), uint32(dpm), cfg.Output.AttributesImplementation}, nil
}

// GetWriter writes into a temporary sibling file which replaces path on Close.
func (c *LocalUnixOutputClient) GetWriter(_ context.Context, path string, inputMetadata *input.MetadataStruct, _ string) (io.WriteCloser, error) {
	target := c.path + path
	if err := os.MkdirAll(filepath.Dir(target), os.FileMode(c.dirMode)); err != nil {
		return nil, fmt.Errorf("fail to mkdir parent directories for a path: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("fail to create a temporary file: %w", err)
	}

	return &localWriter{
		File:     f,
		target:   target,
		fileMode: os.FileMode(c.fileMode),
		attrMode: c.attrMode,
		hash:     sourceHash(inputMetadata),
	}, nil
}

func (c *LocalUnixOutputClient) ReadMetadata(_ context.Context, path string) (*MetadataStruct, error) {
	if _, err := os.Stat(c.path + path); err != nil {
		return nil, fmt.Errorf("fail to read file info: %w", err)
	}

	hashOriginal := ""
	switch c.attrMode {
	case "xattr":
		sz, err := unix.Getxattr(c.path+path, xattrSourceHash, nil)
		if errors.Is(err, unix.ENODATA) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fail to get size of %s attribute: %w", xattrSourceHash, err)
		}
		buf := make([]byte, sz)
		if sz, err = unix.Getxattr(c.path+path, xattrSourceHash, buf); err != nil {
			return nil, fmt.Errorf("fail to get %s attribute: %w", xattrSourceHash, err)
		}
		hashOriginal = string(buf[:sz])
	case "none":
	default:
		return nil, fmt.Errorf("unknown attributes implementation: %s", c.attrMode)
	}

	return &MetadataStruct{HashOriginal: hashOriginal}, nil
}

func (c *LocalUnixOutputClient) IsMissing(_ context.Context, path string) bool {
	_, err := os.Stat(c.path + path)
	return err != nil
}

func (c *LocalUnixOutputClient) ID(path string) string {
	return c.path + path
}

type localWriter struct {
	*os.File
	target   string
	fileMode os.FileMode
	attrMode string
	hash     string
	closed   bool
}

func (w *localWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	tmp := w.File.Name()
	if err := w.File.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fail to close temporary file: %w", err)
	}
	if err := os.Chmod(tmp, w.fileMode); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fail to chmod temporary file: %w", err)
	}

	if w.attrMode == "xattr" && w.hash != "" {
		if err := unix.Setxattr(tmp, xattrSourceHash, []byte(w.hash), 0); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("fail to write %s xattribute: %w", xattrSourceHash, err)
		}
	}

	if err := os.Rename(tmp, w.target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fail to move '%s' into place: %w", strings.TrimPrefix(tmp, filepath.Dir(w.target)+"/"), err)
	}

	return nil
}

// Abort discards everything written so far.
func (w *localWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	tmp := w.File.Name()
	w.File.Close()
	os.Remove(tmp)
}
