// Package ledger keeps a SQLite journal of processing runs: what each run
// did to every page, and the source revision each page output was last
// produced from.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type PageStatus string

const (
	PageProcessed PageStatus = "processed"
	PageSkipped   PageStatus = "skipped"
	PageFailed    PageStatus = "failed"
)

// Run describes one invocation of the issue processor.
type Run struct {
	ID           int64
	MetadataPath string
	Target       string
	IssueDir     string
	StartedAt    time.Time
	FinishedAt   time.Time
	Processed    int
	Skipped      int
	Failed       int
}

// PageRecord is the outcome of one page within a run.
type PageRecord struct {
	RunID      int64
	Sequence   int
	SourceID   string
	SourceHash string
	OutputPath string
	Status     PageStatus
	Error      string
}

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fail to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("fail to open ledger: %w", err)
	}
	// one writer; concurrent page workers serialize here
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("fail to create ledger schema: %w", err)
	}

	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metadata_path TEXT NOT NULL,
			target TEXT NOT NULL,
			issue_dir TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			sequence INTEGER NOT NULL,
			source_id TEXT NOT NULL,
			source_hash TEXT,
			output_path TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS output_hashes (
			target TEXT NOT NULL,
			output_path TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (target, output_path)
		)`,
	}

	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun records the start of a run and returns its ID.
func (l *Ledger) BeginRun(ctx context.Context, run Run) (int64, error) {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (metadata_path, target, issue_dir, started_at) VALUES (?, ?, ?, ?)`,
		run.MetadataPath, run.Target, run.IssueDir, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("fail to insert run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stores the final counts of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID int64, processed, skipped, failed int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, processed = ?, skipped = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), processed, skipped, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("fail to finish run %d: %w", runID, err)
	}
	return nil
}

// RecordPage stores a page outcome. A processed page also becomes the
// latest known source hash of its output.
func (l *Ledger) RecordPage(ctx context.Context, target string, rec PageRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO pages (run_id, sequence, source_id, source_hash, output_path, status, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Sequence, rec.SourceID, rec.SourceHash, rec.OutputPath, string(rec.Status), rec.Error, now,
	)
	if err != nil {
		return fmt.Errorf("fail to insert page %d: %w", rec.Sequence, err)
	}

	if rec.Status == PageProcessed && rec.SourceHash != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO output_hashes (target, output_path, source_hash, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(target, output_path) DO UPDATE SET source_hash=excluded.source_hash, updated_at=excluded.updated_at`,
			target, rec.OutputPath, rec.SourceHash, now,
		)
		if err != nil {
			return fmt.Errorf("fail to update output hash of %s: %w", rec.OutputPath, err)
		}
	}

	return tx.Commit()
}

// LastSourceHash returns the source hash the output at outputPath was last
// produced from, or "" when the ledger has never seen it.
func (l *Ledger) LastSourceHash(ctx context.Context, target, outputPath string) (string, error) {
	var hash string
	err := l.db.QueryRowContext(ctx,
		`SELECT source_hash FROM output_hashes WHERE target = ? AND output_path = ?`, target, outputPath,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fail to query output hash of %s: %w", outputPath, err)
	}
	return hash, nil
}

// GetRun loads a run with its counts.
func (l *Ledger) GetRun(ctx context.Context, runID int64) (*Run, error) {
	var (
		run                   Run
		startedAt, finishedAt sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, metadata_path, target, issue_dir, started_at, finished_at, processed, skipped, failed FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.MetadataPath, &run.Target, &run.IssueDir, &startedAt, &finishedAt, &run.Processed, &run.Skipped, &run.Failed)
	if err != nil {
		return nil, fmt.Errorf("fail to load run %d: %w", runID, err)
	}

	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt.String)
	if finishedAt.Valid {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt.String)
	}
	return &run, nil
}

// Pages lists the page outcomes of a run in sequence order.
func (l *Ledger) Pages(ctx context.Context, runID int64) ([]PageRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, sequence, source_id, COALESCE(source_hash, ''), output_path, status, COALESCE(error, '')
		 FROM pages WHERE run_id = ? ORDER BY sequence`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("fail to query pages of run %d: %w", runID, err)
	}
	defer rows.Close()

	var records []PageRecord
	for rows.Next() {
		var rec PageRecord
		var status string
		if err := rows.Scan(&rec.RunID, &rec.Sequence, &rec.SourceID, &rec.SourceHash, &rec.OutputPath, &status, &rec.Error); err != nil {
			return nil, fmt.Errorf("fail to scan page row: %w", err)
		}
		rec.Status = PageStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}
