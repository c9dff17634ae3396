package converter

import (
	"fmt"
	"image"
	"io"

	"github.com/gen2brain/go-fitz"
)

// PDFDocument renders the pages of a PDF page source.
type PDFDocument struct {
	doc *fitz.Document
	dpi float64
}

func OpenPDF(reader io.Reader, dpi float64) (*PDFDocument, error) {
	doc, err := fitz.NewFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, fmt.Errorf("pdf has no pages")
	}
	return &PDFDocument{doc: doc, dpi: dpi}, nil
}

func (d *PDFDocument) NumPage() int {
	return d.doc.NumPage()
}

// Render rasterizes the zero-based page n.
func (d *PDFDocument) Render(n int) (image.Image, error) {
	if n < 0 || n >= d.doc.NumPage() {
		return nil, fmt.Errorf("pdf page %d out of range (%d pages)", n+1, d.doc.NumPage())
	}
	img, err := d.doc.ImageDPI(n, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("render pdf page %d: %w", n+1, err)
	}
	return img, nil
}

func (d *PDFDocument) Close() error {
	return d.doc.Close()
}
