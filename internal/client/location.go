package client

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	StorageLocal = "local"
	StorageB2    = "b2"
	StorageS3    = "s3"
)

// Location is a parsed storage location. For local storage Path is an
// absolute, slash-terminated directory; for buckets Prefix is either empty
// or slash-terminated.
type Location struct {
	Storage string
	Bucket  string
	Prefix  string
	Path    string
}

// ParseLocation understands plain filesystem paths, b2://bucket/prefix and
// s3://bucket/prefix. Relative local paths are resolved against baseDir.
func ParseLocation(raw, baseDir string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}

	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		switch strings.ToLower(scheme) {
		case StorageB2, StorageS3:
		default:
			return Location{}, fmt.Errorf("unsupported location scheme: %s", scheme)
		}

		u, err := url.Parse(strings.ToLower(scheme) + "://" + rest)
		if err != nil {
			return Location{}, fmt.Errorf("fail to parse location '%s': %w", raw, err)
		}
		if u.Host == "" {
			return Location{}, fmt.Errorf("location '%s' has no bucket", raw)
		}

		prefix := strings.Trim(u.Path, "/")
		if prefix != "" {
			prefix += "/"
		}

		return Location{Storage: u.Scheme, Bucket: u.Host, Prefix: prefix}, nil
	}

	path := raw
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return Location{}, fmt.Errorf("fail to resolve local path '%s': %w", raw, err)
	}

	return Location{Storage: StorageLocal, Path: strings.TrimSuffix(filepath.ToSlash(path), "/") + "/"}, nil
}

// Join appends a relative slash path to the location.
func (l Location) Join(rel string) Location {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return l
	}
	switch l.Storage {
	case StorageLocal:
		l.Path += rel + "/"
	default:
		l.Prefix += rel + "/"
	}
	return l
}

func (l Location) String() string {
	if l.Storage == StorageLocal {
		return l.Path
	}
	return fmt.Sprintf("%s://%s/%s", l.Storage, l.Bucket, l.Prefix)
}
