package converter

import (
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

// fit scales src down to fit within maxWidth x maxHeight, keeping the aspect
// ratio. A zero bound leaves that axis unconstrained; images are never
// enlarged.
func fit(src image.Image, maxWidth, maxHeight int) image.Image {
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	if width == 0 || height == 0 {
		return src
	}

	xCoef := 1.0
	if maxWidth > 0 {
		xCoef = float64(maxWidth) / float64(width)
	}
	yCoef := 1.0
	if maxHeight > 0 {
		yCoef = float64(maxHeight) / float64(height)
	}
	slog.Debug("calculated coefficients", slog.Float64("x_coef", xCoef), slog.Float64("y_coef", yCoef))

	minCoef := xCoef
	if yCoef < minCoef {
		minCoef = yCoef
	}

	if minCoef >= 1.0 {
		return src
	}

	dstWidth := max(int(float64(width)*minCoef+0.5), 1)
	dstHeight := max(int(float64(height)*minCoef+0.5), 1)

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	return dst
}
