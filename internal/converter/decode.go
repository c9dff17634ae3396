package converter

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/tiff"
)

// Decode reads a raster page scan of the given content type.
func Decode(contentType string, reader io.Reader) (image.Image, error) {
	var src image.Image
	var err error

	switch contentType {
	case "image/tiff":
		src, err = tiff.Decode(reader)
		if err != nil {
			return nil, fmt.Errorf("decode tiff: %w", err)
		}
	case "image/jpeg":
		src, err = jpeg.Decode(reader)
		if err != nil {
			return nil, fmt.Errorf("decode jpeg: %w", err)
		}
	case "image/png":
		src, err = png.Decode(reader)
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
	case "image/webp":
		src, err = webp.Decode(reader, nil)
		if err != nil {
			return nil, fmt.Errorf("decode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	return src, nil
}
