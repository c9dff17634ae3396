package converter

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/tiff"
)

const (
	MasterDSID        = "OBJ"
	MasterName        = MasterDSID + ".tif"
	MasterContentType = "image/tiff"
)

// Master is a page's archival OBJ datastream together with the decoded
// image that derivatives are rendered from.
type Master struct {
	Image image.Image
	raw   []byte
}

// NewMaster reads a raster page scan. TIFF scans are kept byte-for-byte;
// every other format is re-encoded as deflate TIFF when written.
func NewMaster(contentType string, reader io.Reader) (*Master, error) {
	if contentType != MasterContentType {
		src, err := Decode(contentType, reader)
		if err != nil {
			return nil, err
		}
		return &Master{Image: src}, nil
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read tiff: %w", err)
	}
	src, err := Decode(contentType, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &Master{Image: src, raw: raw}, nil
}

// NewMasterFromImage wraps an already rendered page, e.g. a rasterized PDF page.
func NewMasterFromImage(src image.Image) *Master {
	return &Master{Image: src}
}

func (m *Master) WriteTo(writer io.Writer) (int64, error) {
	if m.raw != nil {
		n, err := writer.Write(m.raw)
		if err != nil {
			return int64(n), fmt.Errorf("write tiff: %w", err)
		}
		return int64(n), nil
	}

	cw := &countingWriter{w: writer}
	if err := encodeTIFF(cw, m.Image, tiff.Deflate); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
