package converter

import (
	"fmt"
	"image"
	"io"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/unb-libraries/NBNDProcessor/config"
)

var _ Converter = (*WebpConverter)(nil)

type WebpConverter struct {
	dsid      string
	maxWidth  int
	maxHeight int
	quality   int
}

func NewWebpConverter(cfg *config.DerivativeConfig) (Converter, error) {
	if cfg.Type != "webp" {
		return nil, fmt.Errorf("invalid derivative type for WebpConverter")
	}
	webpCfg, ok := cfg.Config.(*config.WebpConfig)
	if !ok {
		return nil, fmt.Errorf("invalid config for WebpConverter: %T", cfg.Config)
	}

	return &WebpConverter{cfg.DSID, webpCfg.Size.MaxWidth, webpCfg.Size.MaxHeight, webpCfg.Quality}, nil
}

func (p *WebpConverter) DSID() string { return p.dsid }

func (p *WebpConverter) OutputName() string { return p.dsid + ".webp" }

func (p *WebpConverter) ContentType() string { return "image/webp" }

func (p *WebpConverter) Process(src image.Image, writer io.Writer) error {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(p.quality))
	if err != nil {
		return fmt.Errorf("create webp encoder options: %w", err)
	}

	if err := webp.Encode(writer, fit(src, p.maxWidth, p.maxHeight), opts); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return nil
}
