package processor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/unb-libraries/NBNDProcessor/internal/client"
	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
	"github.com/unb-libraries/NBNDProcessor/internal/converter"
	"github.com/unb-libraries/NBNDProcessor/internal/metadata"
)

const pdfContentType = "application/pdf"

// page is one planned page directory of the issue.
type page struct {
	Sequence    int
	Label       string
	Source      string
	ContentType string
	// PDFPage is the zero-based page inside a PDF source, or -1.
	PDFPage int
}

func (pg page) dir(issueDir string) string {
	return issueDir + "/" + strconv.Itoa(pg.Sequence) + "/"
}

func (pg page) sourceHash(srcHash string) string {
	if pg.PDFPage < 0 {
		return srcHash
	}
	return srcHash + "#page=" + strconv.Itoa(pg.PDFPage+1)
}

// planPages decides the page directories of the issue: the explicit page
// list when the metadata has one, the scanned source otherwise.
func (p *IssueProcessor) planPages(ctx context.Context, issue *metadata.Issue, ic input.InputClient) ([]page, error) {
	var pages []page
	var err error
	if len(issue.Pages) > 0 {
		pages, err = explicitPages(issue)
	} else {
		pages, err = p.scannedPages(ctx, ic)
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page scans found in '%s'", issue.Source)
	}

	slices.SortFunc(pages, func(a, b page) int { return a.Sequence - b.Sequence })

	labels := metadata.PageLabels(len(pages), issue.MissingPages)
	for i := range pages {
		if pages[i].Label == "" {
			pages[i].Label = labels[i]
		}
	}

	return pages, nil
}

func explicitPages(issue *metadata.Issue) ([]page, error) {
	pages := make([]page, 0, len(issue.Pages))
	for i, ep := range issue.Pages {
		contentType := client.ContentTypeByName(ep.File)
		if contentType == pdfContentType {
			return nil, fmt.Errorf("page '%s': PDF sources are only expanded when the source directory is scanned", ep.File)
		}

		seq := ep.Sequence
		if seq == 0 {
			seq = i + 1
		}
		pages = append(pages, page{Sequence: seq, Label: ep.Label, Source: ep.File, ContentType: contentType, PDFPage: -1})
	}
	return pages, nil
}

func (p *IssueProcessor) scannedPages(ctx context.Context, ic input.InputClient) ([]page, error) {
	files, err := ic.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fail to scan page source: %w", err)
	}
	metadata.SortNatural(files)

	pages := make([]page, 0, len(files))
	for _, file := range files {
		contentType := client.ContentTypeByName(file)
		if contentType != pdfContentType {
			pages = append(pages, page{Sequence: len(pages) + 1, Source: file, ContentType: contentType, PDFPage: -1})
			continue
		}

		n, err := p.countPDFPages(ctx, ic, file)
		if err != nil {
			return nil, fmt.Errorf("fail to read PDF '%s': %w", ic.ID(file), err)
		}
		p.logger.Debug("expand pdf source", slog.String("input_path", ic.ID(file)), slog.Int("pages", n))
		for i := 0; i < n; i++ {
			pages = append(pages, page{Sequence: len(pages) + 1, Source: file, ContentType: contentType, PDFPage: i})
		}
	}
	return pages, nil
}

func (p *IssueProcessor) countPDFPages(ctx context.Context, ic input.InputClient, file string) (int, error) {
	doc, err := p.openPDF(ctx, ic, file)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func (p *IssueProcessor) openPDF(ctx context.Context, ic input.InputClient, file string) (*converter.PDFDocument, error) {
	reader, err := ic.GetReader(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("fail to get reader: %w", err)
	}
	defer reader.Close()
	return converter.OpenPDF(reader, p.cfg.PDFDPI)
}
