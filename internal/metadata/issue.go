// Package metadata reads the issue metadata file that describes one
// newspaper issue and where its page scans live.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	dateLayout      = "2006-01-02"
	defaultEdition  = "1"
	defaultLanguage = "eng"
)

// Issue is one newspaper issue as described by its metadata file.
type Issue struct {
	Title              string `yaml:"title" validate:"required"`
	TitleID            string `yaml:"title_id" validate:"omitempty,max=64"`
	DateIssued         string `yaml:"date_issued" validate:"required,datetime=2006-01-02"`
	Volume             string `yaml:"volume"`
	Issue              string `yaml:"issue"`
	Edition            string `yaml:"edition" validate:"omitempty,max=16"`
	Language           string `yaml:"language" validate:"omitempty,len=3,lowercase"`
	Publisher          string `yaml:"publisher"`
	PlaceOfPublication string `yaml:"place_of_publication"`
	Note               string `yaml:"note"`
	MissingPages       []int  `yaml:"missing_pages" validate:"dive,min=1"`
	Source             string `yaml:"source" validate:"required"`
	Pages              []Page `yaml:"pages" validate:"dive"`

	// MetadataDir is the directory of the metadata file; relative sources
	// resolve against it.
	MetadataDir string `yaml:"-"`
}

// Page is an explicitly listed page scan. A zero Sequence means "position
// in the list".
type Page struct {
	File     string `yaml:"file" validate:"required"`
	Sequence int    `yaml:"sequence" validate:"min=0"`
	Label    string `yaml:"label"`
}

// Load reads, defaults and validates the metadata file at path.
func Load(path string) (*Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fail to read metadata file: %w", err)
	}

	issue, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fail to parse metadata file '%s': %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("fail to resolve metadata directory: %w", err)
	}
	issue.MetadataDir = dir

	return issue, nil
}

// Parse decodes a YAML (or JSON) metadata document. Unknown keys are errors.
func Parse(data []byte) (*Issue, error) {
	var issue Issue

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&issue); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("metadata document is empty")
		}
		return nil, err
	}

	issue.applyDefaults()

	if err := issue.Validate(); err != nil {
		return nil, err
	}

	return &issue, nil
}

func (i *Issue) applyDefaults() {
	i.Title = strings.TrimSpace(i.Title)
	i.DateIssued = strings.TrimSpace(i.DateIssued)
	if i.Edition == "" {
		i.Edition = defaultEdition
	}
	if i.Language == "" {
		i.Language = defaultLanguage
	}
	if i.TitleID == "" {
		i.TitleID = Slugify(i.Title)
	}
}

func (i *Issue) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(i); err != nil {
		return err
	}

	// explicit sequences must number the listed pages 1..N, in any order
	seen := make(map[int]bool, len(i.Pages))
	for idx, p := range i.Pages {
		seq := p.Sequence
		if seq == 0 {
			seq = idx + 1
		}
		if seq > len(i.Pages) {
			return fmt.Errorf("page sequence %d of '%s' is outside 1..%d", seq, p.File, len(i.Pages))
		}
		if seen[seq] {
			return fmt.Errorf("page sequence %d is used more than once", seq)
		}
		seen[seq] = true
	}

	return nil
}

// Date returns the parsed date of issue.
func (i *Issue) Date() time.Time {
	t, _ := time.Parse(dateLayout, i.DateIssued)
	return t
}

// DirName is the issue directory inside the batch: the issue date, with the
// edition appended for anything but the first edition.
func (i *Issue) DirName() string {
	if i.Edition == "" || i.Edition == defaultEdition {
		return i.DateIssued
	}
	return i.DateIssued + "_" + Slugify(i.Edition)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, drops diacritics and joins the remaining
// alphanumeric runs with dashes.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(folded), "-"), "-")
}
