package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/unb-libraries/NBNDProcessor/internal/converter"
	"github.com/unb-libraries/NBNDProcessor/internal/ledger"
	"github.com/unb-libraries/NBNDProcessor/internal/mods"
)

// runPage processes one page and records its outcome. It never fails the
// issue by itself.
func (p *IssueProcessor) runPage(ctx context.Context, r *run, pg page) {
	logger := r.logger.With(slog.Int("sequence", pg.Sequence), slog.String("input_path", r.input.ID(pg.Source)))
	if pg.PDFPage >= 0 {
		logger = logger.With(slog.Int("pdf_page", pg.PDFPage+1))
	}

	status, hash, err := ledger.PageFailed, "", ctx.Err()
	if err == nil {
		status, hash, err = p.processPage(ctx, r, pg, logger)
	}

	if err != nil {
		err = fmt.Errorf("page %d (%s): %w", pg.Sequence, r.input.ID(pg.Source), err)
		logger.Error("fail to process page", slog.String("error", err.Error()))
	}

	if r.ledger != nil {
		rec := ledger.PageRecord{
			RunID:      r.runID,
			Sequence:   pg.Sequence,
			SourceID:   r.input.ID(pg.Source),
			SourceHash: hash,
			OutputPath: pg.dir(r.issueDir) + converter.MasterName,
			Status:     status,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if lerr := r.ledger.RecordPage(context.WithoutCancel(ctx), r.target.String(), rec); lerr != nil {
			logger.Warn("fail to record page in ledger", slog.String("error", lerr.Error()))
		}
	}

	r.record(status, err)
}

// processPage writes the derivatives, the page MODS and finally the master of
// one page, unless the existing outputs were produced from the same source
// revision. It returns the page status and the source hash it worked from.
func (p *IssueProcessor) processPage(ctx context.Context, r *run, pg page, logger *slog.Logger) (ledger.PageStatus, string, error) {
	inputMetadata, err := r.input.ReadMetadata(ctx, pg.Source)
	if err != nil {
		return ledger.PageFailed, "", fmt.Errorf("fail to read input metadata: %w", err)
	}
	pageMetadata := *inputMetadata
	pageMetadata.Hash = pg.sourceHash(inputMetadata.Hash)

	dir := pg.dir(r.issueDir)
	masterPath := dir + converter.MasterName

	if !p.cfg.ForceRewrite && p.isUpToDate(ctx, r, dir, pageMetadata.Hash, logger) {
		logger.Info("skip page, outputs are up to date")
		return ledger.PageSkipped, pageMetadata.Hash, nil
	}

	master, err := p.loadMaster(ctx, r, pg)
	if err != nil {
		return ledger.PageFailed, pageMetadata.Hash, err
	}

	for _, c := range r.converters {
		path := dir + c.OutputName()
		if err := writeOutput(ctx, r.output, path, &pageMetadata, c.ContentType(), func(w io.Writer) error {
			return c.Process(master.Image, w)
		}); err != nil {
			return ledger.PageFailed, pageMetadata.Hash, fmt.Errorf("fail to write %s derivative: %w", c.DSID(), err)
		}
		logger.Debug("wrote derivative", slog.String("dsid", c.DSID()), slog.String("output_path", r.output.ID(path)))
	}

	if p.cfg.PageMODS {
		path := dir + mods.FileName
		if err := writeOutput(ctx, r.output, path, &pageMetadata, mods.ContentType, func(w io.Writer) error {
			_, err := mods.NewPage(r.issue, pg.Sequence, pg.Label).WriteTo(w)
			return err
		}); err != nil {
			return ledger.PageFailed, pageMetadata.Hash, fmt.Errorf("fail to write page MODS: %w", err)
		}
	}

	// OBJ goes last: its source hash marks the page complete.
	if err := writeOutput(ctx, r.output, masterPath, &pageMetadata, converter.MasterContentType, func(w io.Writer) error {
		_, err := master.WriteTo(w)
		return err
	}); err != nil {
		return ledger.PageFailed, pageMetadata.Hash, fmt.Errorf("fail to write master: %w", err)
	}

	logger.Info("processed page", slog.String("label", pg.Label), slog.String("output_path", r.output.ID(dir)))
	return ledger.PageProcessed, pageMetadata.Hash, nil
}

// isUpToDate reports whether every output of the page exists and the master
// was produced from srcHash. The master's own attribute wins over the ledger.
func (p *IssueProcessor) isUpToDate(ctx context.Context, r *run, dir, srcHash string, logger *slog.Logger) bool {
	for _, name := range p.expectedOutputs(r) {
		if r.output.IsMissing(ctx, dir+name) {
			return false
		}
	}

	masterPath := dir + converter.MasterName
	outputMetadata, err := r.output.ReadMetadata(ctx, masterPath)
	if err != nil {
		logger.Warn("fail to read output metadata", slog.String("error", err.Error()))
		return false
	}

	previous := outputMetadata.HashOriginal
	if previous == "" && r.ledger != nil {
		previous, err = r.ledger.LastSourceHash(ctx, r.target.String(), masterPath)
		if err != nil {
			logger.Warn("fail to read ledger hash", slog.String("error", err.Error()))
			return false
		}
	}

	return previous != "" && previous == srcHash
}

func (p *IssueProcessor) expectedOutputs(r *run) []string {
	names := make([]string, 0, len(r.converters)+2)
	names = append(names, converter.MasterName)
	if p.cfg.PageMODS {
		names = append(names, mods.FileName)
	}
	for _, c := range r.converters {
		names = append(names, c.OutputName())
	}
	return names
}

func (p *IssueProcessor) loadMaster(ctx context.Context, r *run, pg page) (*converter.Master, error) {
	if pg.PDFPage >= 0 {
		doc, err := p.openPDF(ctx, r.input, pg.Source)
		if err != nil {
			return nil, fmt.Errorf("fail to open PDF: %w", err)
		}
		defer doc.Close()

		img, err := doc.Render(pg.PDFPage)
		if err != nil {
			return nil, fmt.Errorf("fail to render PDF page %d: %w", pg.PDFPage+1, err)
		}
		return converter.NewMasterFromImage(img), nil
	}

	reader, err := r.input.GetReader(ctx, pg.Source)
	if err != nil {
		return nil, fmt.Errorf("fail to get reader: %w", err)
	}
	defer reader.Close()

	master, err := converter.NewMaster(pg.ContentType, reader)
	if err != nil {
		return nil, fmt.Errorf("fail to load master image: %w", err)
	}
	return master, nil
}
