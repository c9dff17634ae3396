package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/ledger"
)

const gleanerYAML = `title: The Daily Gleaner
date_issued: 1889-05-01
volume: 12
issue: 104
source: scans
`

func scanImage(width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 4)})
		}
	}
	return img
}

func writeScan(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	img := scanImage(40, 60)
	switch filepath.Ext(path) {
	case ".tif", ".tiff":
		require.NoError(t, tiff.Encode(&buf, img, nil))
	case ".png":
		require.NoError(t, png.Encode(&buf, img))
	case ".jpg":
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	default:
		buf.WriteString("not an image")
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// newIssueDir lays out a metadata file next to a scans directory holding files.
func newIssueDir(t *testing.T, metadataYAML string, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "scans"), 0o755))
	for _, f := range files {
		writeScan(t, filepath.Join(dir, "scans", f))
	}
	metadataPath := filepath.Join(dir, "issue.yaml")
	require.NoError(t, os.WriteFile(metadataPath, []byte(metadataYAML), 0o644))
	return metadataPath
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Derivatives = []config.DerivativeConfig{
		{DSID: "JPG", Type: "jpeg", Config: &config.JpegConfig{Quality: 80}},
		{DSID: "TN", Type: "jpeg", Config: &config.JpegConfig{Quality: 70, Size: config.SizeConfig{MaxWidth: 20, MaxHeight: 20}}},
	}
	return cfg
}

func newTestProcessor(t *testing.T, metadataPath, target string, opts ...Option) *IssueProcessor {
	t.Helper()
	opts = append([]Option{
		WithConfig(testConfig()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	p, err := New(metadataPath, target, opts...)
	require.NoError(t, err)
	return p
}

func TestNew_EmptyPaths(t *testing.T) {
	_, err := New("", "out")
	assert.ErrorIs(t, err, ErrEmptyMetadataPath)

	_, err = New("issue.yaml", "  ")
	assert.ErrorIs(t, err, ErrEmptyTargetPath)
}

func TestProcess_WritesBatchLayout(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "scan-10.tif", "scan-2.png", "scan-1.jpg", "notes.txt")
	target := t.TempDir()

	result, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{IssueDir: "1889-05-01", Planned: 3, Processed: 3}, result)

	issueDir := filepath.Join(target, "1889-05-01")
	issueMODS, err := os.ReadFile(filepath.Join(issueDir, "MODS.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(issueMODS), "<title>The Daily Gleaner</title>")

	for seq := 1; seq <= 3; seq++ {
		pageDir := filepath.Join(issueDir, fmt.Sprint(seq))
		for _, name := range []string{"OBJ.tif", "MODS.xml", "JPG.jpg", "TN.jpg"} {
			assert.FileExists(t, filepath.Join(pageDir, name))
		}

		f, err := os.Open(filepath.Join(pageDir, "OBJ.tif"))
		require.NoError(t, err)
		obj, err := tiff.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, image.Pt(40, 60), obj.Bounds().Size())

		f, err = os.Open(filepath.Join(pageDir, "TN.jpg"))
		require.NoError(t, err)
		tn, err := jpeg.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, image.Pt(13, 20), tn.Bounds().Size())
	}

	// natural order: scan-1.jpg, scan-2.png, scan-10.tif
	raw, err := os.ReadFile(filepath.Join(metadataPath, "..", "scans", "scan-10.tif"))
	require.NoError(t, err)
	obj3, err := os.ReadFile(filepath.Join(issueDir, "3", "OBJ.tif"))
	require.NoError(t, err)
	assert.Equal(t, raw, obj3)

	leftovers, err := filepath.Glob(filepath.Join(issueDir, "*", ".*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestProcess_MissingPagesShiftLabels(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML+"missing_pages: [2]\n", "a.tif", "b.tif", "c.tif")
	target := t.TempDir()

	_, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	require.NoError(t, err)

	want := map[int]string{1: "Page 1", 2: "Page 3", 3: "Page 4"}
	for seq, label := range want {
		pageMODS, err := os.ReadFile(filepath.Join(target, "1889-05-01", fmt.Sprint(seq), "MODS.xml"))
		require.NoError(t, err)
		assert.Contains(t, string(pageMODS), "<caption>"+label+"</caption>")
		assert.Contains(t, string(pageMODS), fmt.Sprintf("<start>%d</start>", seq))
	}

	issueMODS, err := os.ReadFile(filepath.Join(target, "1889-05-01", "MODS.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(issueMODS), "Page 2 is missing.")
}

func TestProcess_ExplicitPages(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML+`edition: 2
pages:
  - file: back.tif
    sequence: 2
    label: Back cover
  - file: front.tif
    sequence: 1
`, "front.tif", "back.tif", "ignored.tif")
	target := t.TempDir()

	result, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, "1889-05-01_2", result.IssueDir)

	pageMODS, err := os.ReadFile(filepath.Join(target, "1889-05-01_2", "2", "MODS.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(pageMODS), "<caption>Back cover</caption>")
	assert.NoDirExists(t, filepath.Join(target, "1889-05-01_2", "3"))
}

func TestProcess_ExplicitPDFRejected(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML+"pages:\n  - file: issue.pdf\n")
	target := t.TempDir()

	_, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	assert.ErrorContains(t, err, "PDF")
	assert.NoDirExists(t, filepath.Join(target, "1889-05-01"))
}

func TestProcess_NoScans(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "readme.txt")

	_, err := newTestProcessor(t, metadataPath, t.TempDir()).Process(context.Background())
	assert.ErrorContains(t, err, "no page scans found")
}

func TestProcess_MissingMetadataFile(t *testing.T) {
	_, err := newTestProcessor(t, filepath.Join(t.TempDir(), "absent.yaml"), t.TempDir()).Process(context.Background())
	assert.ErrorContains(t, err, "fail to read metadata file")
}

func TestProcess_FailingPageIsIsolated(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "1.tif", "2.tif", "3.tif")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(metadataPath), "scans", "2.tif"), []byte("corrupt"), 0o644))
	target := t.TempDir()

	result, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2")
	assert.Equal(t, Result{IssueDir: "1889-05-01", Planned: 3, Processed: 2, Failed: 1}, result)
	assert.True(t, result.HasFailures())

	assert.FileExists(t, filepath.Join(target, "1889-05-01", "1", "OBJ.tif"))
	assert.NoFileExists(t, filepath.Join(target, "1889-05-01", "2", "OBJ.tif"))
	assert.FileExists(t, filepath.Join(target, "1889-05-01", "3", "OBJ.tif"))
}

func TestProcess_SkipsUnchangedPagesWithLedger(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "1.tif", "2.tif")
	target := t.TempDir()
	cfg := testConfig()
	cfg.LedgerPath = filepath.Join(t.TempDir(), "ledger.db")

	first, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)

	second, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Skipped)

	// a missing derivative forces the page to be rebuilt
	require.NoError(t, os.Remove(filepath.Join(target, "1889-05-01", "2", "TN.jpg")))
	third, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, third.Processed)
	assert.Equal(t, 1, third.Skipped)
	assert.FileExists(t, filepath.Join(target, "1889-05-01", "2", "TN.jpg"))

	cfg.ForceRewrite = true
	forced, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, forced.Processed)

	l, err := ledger.Open(cfg.LedgerPath)
	require.NoError(t, err)
	defer l.Close()

	run, err := l.GetRun(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Skipped)

	pages, err := l.Pages(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, pg := range pages {
		assert.NotEmpty(t, pg.SourceHash)
		assert.Equal(t, fmt.Sprintf("1889-05-01/%d/OBJ.tif", pg.Sequence), pg.OutputPath)
	}
}

func TestProcess_RewritesWithoutHashRecord(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "1.tif")
	target := t.TempDir()

	_, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	require.NoError(t, err)

	// no xattr and no ledger: nothing proves the outputs are current
	result, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
}

func TestProcess_DryRunWritesNothing(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "1.tif", "2.tif")
	target := filepath.Join(t.TempDir(), "batch")

	result, err := newTestProcessor(t, metadataPath, target, WithDryRun(true)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{IssueDir: "1889-05-01", Planned: 2}, result)
	assert.NoDirExists(t, target)
}

func TestProcess_Concurrent(t *testing.T) {
	files := make([]string, 8)
	for i := range files {
		files[i] = fmt.Sprintf("p%d.png", i+1)
	}
	metadataPath := newIssueDir(t, gleanerYAML, files...)
	target := t.TempDir()
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 4

	var progress bytes.Buffer
	result, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg), WithProgress(&progress)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, result.Processed)
	assert.NotEmpty(t, progress.String())

	for i := 1; i <= 8; i++ {
		assert.FileExists(t, filepath.Join(target, "1889-05-01", fmt.Sprint(i), "OBJ.tif"))
	}
}

func TestProcess_CancelledContextFailsPages(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "1.tif", "2.tif")
	target := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestProcessor(t, metadataPath, target).Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, result.Failed)
	assert.NoFileExists(t, filepath.Join(target, "1889-05-01", "1", "OBJ.tif"))
}

func TestPage_SourceHash(t *testing.T) {
	assert.Equal(t, "abc", page{PDFPage: -1}.sourceHash("abc"))
	assert.Equal(t, "abc#page=3", page{PDFPage: 2}.sourceHash("abc"))
	assert.True(t, strings.HasSuffix(page{Sequence: 7}.dir("1889-05-01"), "/7/"))
}

func TestProcess_ExpandsPDFPages(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "a.tif")
	pdf, err := os.ReadFile(filepath.Join("testdata", "two-pages.pdf"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(metadataPath), "scans", "issue.pdf"), pdf, 0o644))
	target := t.TempDir()

	cfg := testConfig()
	cfg.PDFDPI = 144
	cfg.LedgerPath = filepath.Join(t.TempDir(), "ledger.db")

	first, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{IssueDir: "1889-05-01", Planned: 3, Processed: 3}, first)

	// 72x144pt pages rendered at 144 DPI
	want := map[int]image.Point{1: {40, 60}, 2: {144, 288}, 3: {144, 288}}
	for seq, size := range want {
		f, err := os.Open(filepath.Join(target, "1889-05-01", fmt.Sprint(seq), "OBJ.tif"))
		require.NoError(t, err)
		obj, err := tiff.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, size, obj.Bounds().Size(), "sequence %d", seq)
	}

	second, err := newTestProcessor(t, metadataPath, target, WithConfig(cfg)).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.Skipped)

	l, err := ledger.Open(cfg.LedgerPath)
	require.NoError(t, err)
	defer l.Close()

	pages, err := l.Pages(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.NotContains(t, pages[0].SourceHash, "#page=")
	assert.True(t, strings.HasSuffix(pages[1].SourceHash, "#page=1"))
	assert.True(t, strings.HasSuffix(pages[2].SourceHash, "#page=2"))
	assert.Equal(t, strings.TrimSuffix(pages[1].SourceHash, "#page=1"), strings.TrimSuffix(pages[2].SourceHash, "#page=2"))
}

func TestProcess_UnreadablePDFStopsPlanning(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML, "a.tif", "broken.pdf")
	target := t.TempDir()

	_, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	assert.ErrorContains(t, err, "fail to read PDF")
	assert.NoDirExists(t, filepath.Join(target, "1889-05-01"))
}

func TestProcess_ExplicitSequenceGapRejected(t *testing.T) {
	metadataPath := newIssueDir(t, gleanerYAML+`pages:
  - file: a.tif
    sequence: 3
  - file: b.tif
    sequence: 7
`, "a.tif", "b.tif")
	target := t.TempDir()

	_, err := newTestProcessor(t, metadataPath, target).Process(context.Background())
	assert.ErrorContains(t, err, "outside 1..2")
	assert.NoDirExists(t, filepath.Join(target, "1889-05-01"))
}
