// Package mods renders the MODS descriptive metadata records of the
// newspaper batch: one for the issue and, optionally, one per page.
package mods

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/unb-libraries/NBNDProcessor/internal/metadata"
)

const (
	Namespace      = "http://www.loc.gov/mods/v3"
	schemaLocation = Namespace + " http://www.loc.gov/standards/mods/v3/mods-3-5.xsd"
	xsiNamespace   = "http://www.w3.org/2001/XMLSchema-instance"
	version        = "3.5"

	FileName    = "MODS.xml"
	ContentType = "application/xml"
)

// identifierNamespace seeds the name-based UUIDs, so re-running an issue
// yields the same identifiers.
var identifierNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://lib.unb.ca/nbnd/"))

type MODS struct {
	XMLName        xml.Name      `xml:"http://www.loc.gov/mods/v3 mods"`
	XSI            string        `xml:"xmlns:xsi,attr"`
	SchemaLocation string        `xml:"xsi:schemaLocation,attr"`
	Version        string        `xml:"version,attr"`
	TitleInfo      TitleInfo     `xml:"titleInfo"`
	TypeOfResource string        `xml:"typeOfResource,omitempty"`
	Genre          *Genre        `xml:"genre,omitempty"`
	OriginInfo     *OriginInfo   `xml:"originInfo,omitempty"`
	Language       *Language     `xml:"language,omitempty"`
	Part           *Part         `xml:"part,omitempty"`
	Identifiers    []Identifier  `xml:"identifier"`
	Notes          []Note        `xml:"note"`
	RelatedItems   []RelatedItem `xml:"relatedItem"`
}

type TitleInfo struct {
	Title string `xml:"title"`
}

type Genre struct {
	Authority string `xml:"authority,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type OriginInfo struct {
	Place      *Place     `xml:"place,omitempty"`
	Publisher  string     `xml:"publisher,omitempty"`
	DateIssued DateIssued `xml:"dateIssued"`
}

type Place struct {
	PlaceTerm PlaceTerm `xml:"placeTerm"`
}

type PlaceTerm struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type DateIssued struct {
	Encoding string `xml:"encoding,attr,omitempty"`
	KeyDate  string `xml:"keyDate,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type Language struct {
	LanguageTerm LanguageTerm `xml:"languageTerm"`
}

type LanguageTerm struct {
	Type      string `xml:"type,attr"`
	Authority string `xml:"authority,attr"`
	Value     string `xml:",chardata"`
}

type Part struct {
	Order   int      `xml:"order,attr,omitempty"`
	Details []Detail `xml:"detail"`
	Extent  *Extent  `xml:"extent,omitempty"`
}

type Detail struct {
	Type    string `xml:"type,attr"`
	Number  string `xml:"number,omitempty"`
	Caption string `xml:"caption,omitempty"`
}

type Extent struct {
	Unit  string `xml:"unit,attr"`
	Start string `xml:"start"`
}

type Identifier struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type Note struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

type RelatedItem struct {
	Type        string       `xml:"type,attr"`
	Identifiers []Identifier `xml:"identifier"`
}

func newRecord(title string) *MODS {
	return &MODS{
		XSI:            xsiNamespace,
		SchemaLocation: schemaLocation,
		Version:        version,
		TitleInfo:      TitleInfo{Title: title},
	}
}

// IssueID is the stable identifier of an issue.
func IssueID(issue *metadata.Issue) uuid.UUID {
	return uuid.NewSHA1(identifierNamespace, []byte(issue.TitleID+"/"+issue.DirName()))
}

// PageID is the stable identifier of the page at sequence within an issue.
func PageID(issue *metadata.Issue, sequence int) uuid.UUID {
	return uuid.NewSHA1(identifierNamespace, []byte(issue.TitleID+"/"+issue.DirName()+"/"+strconv.Itoa(sequence)))
}

// NewIssue builds the issue record. Islandora orders issues by the keyDate
// dateIssued, which therefore must be ISO 8601.
func NewIssue(issue *metadata.Issue) *MODS {
	m := newRecord(issue.Title)
	m.TypeOfResource = "text"
	m.Genre = &Genre{Authority: "marcgt", Value: "newspaper"}

	m.OriginInfo = &OriginInfo{
		Publisher:  issue.Publisher,
		DateIssued: DateIssued{Encoding: "iso8601", KeyDate: "yes", Value: issue.DateIssued},
	}
	if issue.PlaceOfPublication != "" {
		m.OriginInfo.Place = &Place{PlaceTerm: PlaceTerm{Type: "text", Value: issue.PlaceOfPublication}}
	}

	m.Language = &Language{LanguageTerm: LanguageTerm{Type: "code", Authority: "iso639-2b", Value: issue.Language}}

	part := &Part{}
	for _, d := range []Detail{
		{Type: "volume", Number: issue.Volume},
		{Type: "issue", Number: issue.Issue},
		{Type: "edition", Number: issue.Edition},
	} {
		if d.Number != "" {
			part.Details = append(part.Details, d)
		}
	}
	if len(part.Details) > 0 {
		m.Part = part
	}

	m.Identifiers = []Identifier{
		{Type: "uuid", Value: IssueID(issue).String()},
		{Type: "local", Value: issue.TitleID + "-" + issue.DirName()},
	}

	if issue.Note != "" {
		m.Notes = append(m.Notes, Note{Value: issue.Note})
	}
	if note := issue.MissingPagesNote(); note != "" {
		m.Notes = append(m.Notes, Note{Type: "missing pages", Value: note})
	}

	return m
}

// NewPage builds the record of the page at sequence, linked to its issue.
func NewPage(issue *metadata.Issue, sequence int, label string) *MODS {
	m := newRecord(fmt.Sprintf("%s, %s, %s", issue.Title, issue.DateIssued, label))
	m.Part = &Part{
		Order:   sequence,
		Details: []Detail{{Type: "page", Caption: label}},
		Extent:  &Extent{Unit: "pages", Start: strconv.Itoa(sequence)},
	}
	m.Identifiers = []Identifier{{Type: "uuid", Value: PageID(issue, sequence).String()}}
	m.RelatedItems = []RelatedItem{{
		Type:        "host",
		Identifiers: []Identifier{{Type: "uuid", Value: IssueID(issue).String()}},
	}}
	return m
}

func (m *MODS) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if _, err := io.WriteString(cw, xml.Header); err != nil {
		return cw.n, err
	}

	enc := xml.NewEncoder(cw)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return cw.n, fmt.Errorf("encode mods: %w", err)
	}
	if err := enc.Close(); err != nil {
		return cw.n, fmt.Errorf("encode mods: %w", err)
	}
	_, err := io.WriteString(cw, "\n")
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
