package output

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
	"github.com/unb-libraries/NBNDProcessor/internal/client/s3test"
)

func newS3Client(t *testing.T) (*S3OutputClient, *s3test.Server) {
	t.Helper()
	srv := s3test.NewServer(t)
	return &S3OutputClient{s3cl: srv.MinioClient(t), bucketName: "batches", prefix: "gazette/"}, srv
}

func TestS3OutputClient_WriteCommitsOnClose(t *testing.T) {
	oc, srv := newS3Client(t)
	ctx := context.Background()

	assert.True(t, oc.IsMissing(ctx, "1889-05-01/1/OBJ.tif"))

	w, err := oc.GetWriter(ctx, "1889-05-01/1/OBJ.tif", &input.MetadataStruct{Hash: "abc-123#page=1"}, "image/tiff")
	require.NoError(t, err)
	_, err = io.WriteString(w, "tiff bytes")
	require.NoError(t, err)

	// nothing visible before Close
	assert.True(t, oc.IsMissing(ctx, "1889-05-01/1/OBJ.tif"))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.False(t, oc.IsMissing(ctx, "1889-05-01/1/OBJ.tif"))

	obj, ok := srv.Object("batches", "gazette/1889-05-01/1/OBJ.tif")
	require.True(t, ok)
	assert.Equal(t, "tiff bytes", string(obj.Body))
	assert.Equal(t, "image/tiff", obj.ContentType)
	assert.Equal(t, "abc-123#page=1", obj.Metadata["X-Amz-Meta-Nbnd-Source-Hash"])

	// the HTTP layer hands the key back canonicalized
	meta, err := oc.ReadMetadata(ctx, "1889-05-01/1/OBJ.tif")
	require.NoError(t, err)
	assert.Equal(t, "abc-123#page=1", meta.HashOriginal)

	assert.Equal(t, "s3://batches/gazette/1889-05-01/1/OBJ.tif", oc.ID("1889-05-01/1/OBJ.tif"))
}

func TestS3OutputClient_WithoutSourceHash(t *testing.T) {
	oc, _ := newS3Client(t)
	ctx := context.Background()

	w, err := oc.GetWriter(ctx, "1889-05-01/MODS.xml", nil, "application/xml")
	require.NoError(t, err)
	_, err = io.WriteString(w, "<mods/>")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	meta, err := oc.ReadMetadata(ctx, "1889-05-01/MODS.xml")
	require.NoError(t, err)
	assert.Empty(t, meta.HashOriginal)

	_, err = oc.ReadMetadata(ctx, "1889-05-01/2/OBJ.tif")
	assert.Error(t, err)
}

func TestS3OutputClient_Abort(t *testing.T) {
	oc, srv := newS3Client(t)
	ctx := context.Background()

	w, err := oc.GetWriter(ctx, "1889-05-01/1/JPG.jpg", &input.MetadataStruct{Hash: "abc-123"}, "image/jpeg")
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial jpeg")
	require.NoError(t, err)

	Abort(w)
	require.NoError(t, w.Close())

	_, ok := srv.Object("batches", "gazette/1889-05-01/1/JPG.jpg")
	assert.False(t, ok)
	assert.True(t, oc.IsMissing(ctx, "1889-05-01/1/JPG.jpg"))

	_, err = w.Write([]byte("more"))
	assert.Error(t, err)
}
