// Package processor converts one newspaper issue, described by its metadata
// file, into the Islandora newspaper batch layout:
//
//	<target>/<issue-dir>/MODS.xml
//	<target>/<issue-dir>/<sequence>/OBJ.tif
//	<target>/<issue-dir>/<sequence>/MODS.xml
//	<target>/<issue-dir>/<sequence>/<DSID>.<ext>
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/client"
	"github.com/unb-libraries/NBNDProcessor/internal/client/input"
	"github.com/unb-libraries/NBNDProcessor/internal/client/output"
	"github.com/unb-libraries/NBNDProcessor/internal/converter"
	"github.com/unb-libraries/NBNDProcessor/internal/ledger"
	"github.com/unb-libraries/NBNDProcessor/internal/metadata"
	"github.com/unb-libraries/NBNDProcessor/internal/mods"
)

var (
	ErrEmptyMetadataPath = errors.New("metadata file path is empty")
	ErrEmptyTargetPath   = errors.New("target path is empty")
)

var _ Processor = (*IssueProcessor)(nil)

// IssueProcessor converts the issue described by one metadata file into
// the batch tree below one target location.
type IssueProcessor struct {
	metadataPath string
	targetPath   string

	cfg      *config.Config
	logger   *slog.Logger
	dryRun   bool
	progress io.Writer
}

type Option func(*IssueProcessor)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(p *IssueProcessor) { p.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *IssueProcessor) { p.logger = logger }
}

// WithDryRun plans the pages and logs the layout without writing anything.
func WithDryRun(dryRun bool) Option {
	return func(p *IssueProcessor) { p.dryRun = dryRun }
}

// WithProgress renders a page progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(p *IssueProcessor) { p.progress = w }
}

func New(metadataPath, targetPath string, opts ...Option) (*IssueProcessor, error) {
	if strings.TrimSpace(metadataPath) == "" {
		return nil, ErrEmptyMetadataPath
	}
	if strings.TrimSpace(targetPath) == "" {
		return nil, ErrEmptyTargetPath
	}

	p := &IssueProcessor{
		metadataPath: metadataPath,
		targetPath:   targetPath,
		cfg:          config.Default(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// run carries the state shared by the pages of one Process call.
type run struct {
	issue      *metadata.Issue
	issueDir   string
	target     client.Location
	input      input.InputClient
	output     output.OutputClient
	converters []converter.Converter
	ledger     *ledger.Ledger
	runID      int64
	logger     *slog.Logger

	mu      sync.Mutex
	result  Result
	errs    []error
	advance func()
}

// Process reads the metadata file, plans the issue's pages and writes the
// issue record, then every page, to the target. Pages fail independently;
// the returned error joins every page failure.
func (p *IssueProcessor) Process(ctx context.Context) (Result, error) {
	issue, err := metadata.Load(p.metadataPath)
	if err != nil {
		return Result{}, err
	}

	source, err := client.ParseLocation(issue.Source, issue.MetadataDir)
	if err != nil {
		return Result{}, fmt.Errorf("fail to parse page source: %w", err)
	}
	target, err := client.ParseLocation(p.targetPath, "")
	if err != nil {
		return Result{}, fmt.Errorf("fail to parse target: %w", err)
	}

	r := &run{
		issue:    issue,
		issueDir: issue.DirName(),
		target:   target,
		result:   Result{IssueDir: issue.DirName()},
		advance:  func() {},
	}
	r.logger = p.logger.With(
		slog.String("issue_dir", r.issueDir),
		slog.String("input_storage", source.Storage),
		slog.String("output_storage", target.Storage),
	)

	r.input, err = input.New(ctx, source, p.cfg)
	if err != nil {
		return r.result, fmt.Errorf("fail to initialize input client: %w", err)
	}

	r.converters, err = converter.NewAll(p.cfg.Derivatives)
	if err != nil {
		return r.result, err
	}

	pages, err := p.planPages(ctx, issue, r.input)
	if err != nil {
		return r.result, err
	}
	r.result.Planned = len(pages)
	r.logger.Info("planned issue pages", slog.String("title", issue.Title), slog.Int("pages", len(pages)))

	if p.dryRun {
		for _, pg := range pages {
			r.logger.Info("would write page",
				slog.Int("sequence", pg.Sequence),
				slog.String("label", pg.Label),
				slog.String("input_path", r.input.ID(pg.Source)),
				slog.String("output_path", target.Join(pg.dir(r.issueDir)).String()),
			)
		}
		return r.result, nil
	}

	r.output, err = output.New(ctx, target, p.cfg)
	if err != nil {
		return r.result, fmt.Errorf("fail to initialize output client: %w", err)
	}

	if p.cfg.LedgerPath != "" {
		r.ledger, err = ledger.Open(p.cfg.LedgerPath)
		if err != nil {
			return r.result, err
		}
		defer r.ledger.Close()

		r.runID, err = r.ledger.BeginRun(ctx, ledger.Run{
			MetadataPath: p.metadataPath,
			Target:       target.String(),
			IssueDir:     r.issueDir,
		})
		if err != nil {
			return r.result, err
		}
	}

	issuePath := r.issueDir + "/" + mods.FileName
	if err := writeOutput(ctx, r.output, issuePath, nil, mods.ContentType, func(w io.Writer) error {
		_, err := mods.NewIssue(issue).WriteTo(w)
		return err
	}); err != nil {
		return r.result, fmt.Errorf("fail to write issue MODS: %w", err)
	}
	r.logger.Info("wrote issue MODS", slog.String("output_path", r.output.ID(issuePath)))

	if p.progress != nil {
		bar := progressbar.NewOptions(len(pages),
			progressbar.OptionSetWriter(p.progress),
			progressbar.OptionSetDescription(r.issueDir),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("pages"),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.progress) }),
		)
		r.advance = func() { _ = bar.Add(1) }
		defer bar.Finish()
	}

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrentJobs)
	for _, pg := range pages {
		g.Go(func() error {
			p.runPage(ctx, r, pg)
			return nil
		})
	}
	_ = g.Wait()

	if r.ledger != nil {
		// a cancelled ctx must not lose the counts
		if err := r.ledger.FinishRun(context.WithoutCancel(ctx), r.runID, r.result.Processed, r.result.Skipped, r.result.Failed); err != nil {
			r.logger.Warn("fail to finish ledger run", slog.String("error", err.Error()))
		}
	}

	r.logger.Info("finished issue",
		slog.Int("processed", r.result.Processed),
		slog.Int("skipped", r.result.Skipped),
		slog.Int("failed", r.result.Failed),
	)

	return r.result, errors.Join(r.errs...)
}

func (r *run) record(status ledger.PageStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch status {
	case ledger.PageProcessed:
		r.result.Processed++
	case ledger.PageSkipped:
		r.result.Skipped++
	case ledger.PageFailed:
		r.result.Failed++
		r.errs = append(r.errs, err)
	}
	r.advance()
}

// writeOutput commits what render writes to path, or nothing if render fails.
func writeOutput(ctx context.Context, oc output.OutputClient, path string, inputMetadata *input.MetadataStruct, contentType string, render func(io.Writer) error) error {
	writer, err := oc.GetWriter(ctx, path, inputMetadata, contentType)
	if err != nil {
		return fmt.Errorf("fail to get writer for output file: %w", err)
	}

	if err := render(writer); err != nil {
		output.Abort(writer)
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("fail to commit output file: %w", err)
	}
	return nil
}
