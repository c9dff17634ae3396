package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		raw     string
		want    Location
		wantErr bool
	}{
		{
			name: "b2 bucket with prefix",
			raw:  "b2://scans/gleaner/1889/",
			want: Location{Storage: StorageB2, Bucket: "scans", Prefix: "gleaner/1889/"},
		},
		{
			name: "s3 bucket without prefix",
			raw:  "S3://batches",
			want: Location{Storage: StorageS3, Bucket: "batches"},
		},
		{
			name: "relative local path",
			raw:  "pages",
			want: Location{Storage: StorageLocal, Path: filepath.ToSlash(filepath.Join(base, "pages")) + "/"},
		},
		{
			name: "absolute local path",
			raw:  filepath.Join(base, "out"),
			want: Location{Storage: StorageLocal, Path: filepath.ToSlash(filepath.Join(base, "out")) + "/"},
		},
		{name: "empty", raw: "", wantErr: true},
		{name: "unknown scheme", raw: "ftp://host/path", wantErr: true},
		{name: "missing bucket", raw: "b2:///prefix", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.raw, base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationJoin(t *testing.T) {
	local := Location{Storage: StorageLocal, Path: "/data/batch/"}
	assert.Equal(t, "/data/batch/1889-05-01/", local.Join("1889-05-01").Path)

	remote := Location{Storage: StorageB2, Bucket: "b", Prefix: "batch/"}
	joined := remote.Join("/1889-05-01/")
	assert.Equal(t, "batch/1889-05-01/", joined.Prefix)
	assert.Equal(t, "b2://b/batch/1889-05-01/", joined.String())

	assert.Equal(t, remote, remote.Join(""))
}
