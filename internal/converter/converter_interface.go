package converter

import (
	"fmt"
	"image"
	"io"

	"github.com/unb-libraries/NBNDProcessor/config"
)

// Converter renders one derivative datastream of a page.
type Converter interface {
	DSID() string
	// OutputName is the datastream file name inside a page directory, e.g. "TN.jpg".
	OutputName() string
	ContentType() string
	Process(src image.Image, writer io.Writer) error
}

var NewConverterMap = map[string]func(cfg *config.DerivativeConfig) (Converter, error){
	"jpeg": NewJpegConverter,
	"webp": NewWebpConverter,
	"tiff": NewTiffConverter,
}

func New(cfg *config.DerivativeConfig) (Converter, error) {
	newConverter, ok := NewConverterMap[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported derivative type: %s", cfg.Type)
	}
	return newConverter(cfg)
}

// NewAll builds the converters for every configured derivative, in order.
func NewAll(cfgs []config.DerivativeConfig) ([]Converter, error) {
	converters := make([]Converter, 0, len(cfgs))
	for i := range cfgs {
		c, err := New(&cfgs[i])
		if err != nil {
			return nil, fmt.Errorf("fail to initialize %s derivative: %w", cfgs[i].DSID, err)
		}
		converters = append(converters, c)
	}
	return converters, nil
}
