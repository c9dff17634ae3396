package converter

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/image/tiff"

	"github.com/unb-libraries/NBNDProcessor/config"
)

var _ Converter = (*TiffConverter)(nil)

type TiffConverter struct {
	dsid        string
	maxWidth    int
	maxHeight   int
	compression tiff.CompressionType
}

func NewTiffConverter(cfg *config.DerivativeConfig) (Converter, error) {
	if cfg.Type != "tiff" {
		return nil, fmt.Errorf("invalid derivative type for TiffConverter")
	}
	tiffCfg, ok := cfg.Config.(*config.TiffConfig)
	if !ok {
		return nil, fmt.Errorf("invalid config for TiffConverter: %T", cfg.Config)
	}

	compression, err := parseCompression(tiffCfg.Compression)
	if err != nil {
		return nil, err
	}

	return &TiffConverter{cfg.DSID, tiffCfg.Size.MaxWidth, tiffCfg.Size.MaxHeight, compression}, nil
}

func (p *TiffConverter) DSID() string { return p.dsid }

func (p *TiffConverter) OutputName() string { return p.dsid + ".tif" }

func (p *TiffConverter) ContentType() string { return "image/tiff" }

func (p *TiffConverter) Process(src image.Image, writer io.Writer) error {
	return encodeTIFF(writer, fit(src, p.maxWidth, p.maxHeight), p.compression)
}

func parseCompression(name string) (tiff.CompressionType, error) {
	switch name {
	case "none":
		return tiff.Uncompressed, nil
	case "deflate", "":
		return tiff.Deflate, nil
	default:
		return 0, fmt.Errorf("unsupported tiff compression: %s", name)
	}
}

func encodeTIFF(writer io.Writer, src image.Image, compression tiff.CompressionType) error {
	if err := tiff.Encode(writer, src, &tiff.Options{Compression: compression, Predictor: compression == tiff.Deflate}); err != nil {
		return fmt.Errorf("encode tiff: %w", err)
	}
	return nil
}
