package converter

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/unb-libraries/NBNDProcessor/config"
)

var _ Converter = (*JpegConverter)(nil)

type JpegConverter struct {
	dsid      string
	maxWidth  int
	maxHeight int
	quality   int
}

func NewJpegConverter(cfg *config.DerivativeConfig) (Converter, error) {
	if cfg.Type != "jpeg" {
		return nil, fmt.Errorf("invalid derivative type for JpegConverter")
	}
	jpegCfg, ok := cfg.Config.(*config.JpegConfig)
	if !ok {
		return nil, fmt.Errorf("invalid config for JpegConverter: %T", cfg.Config)
	}

	return &JpegConverter{cfg.DSID, jpegCfg.Size.MaxWidth, jpegCfg.Size.MaxHeight, jpegCfg.Quality}, nil
}

func (p *JpegConverter) DSID() string { return p.dsid }

func (p *JpegConverter) OutputName() string { return p.dsid + ".jpg" }

func (p *JpegConverter) ContentType() string { return "image/jpeg" }

func (p *JpegConverter) Process(src image.Image, writer io.Writer) error {
	if err := jpeg.Encode(writer, fit(src, p.maxWidth, p.maxHeight), &jpeg.Options{Quality: p.quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
