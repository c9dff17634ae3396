package processor

import "context"

// Processor turns one issue into its batch output tree.
type Processor interface {
	Process(ctx context.Context) (Result, error)
}

// Result holds the page counts of one Process run.
type Result struct {
	IssueDir  string
	Planned   int
	Processed int
	Skipped   int
	Failed    int
}

// HasFailures reports whether any page failed.
func (r Result) HasFailures() bool {
	return r.Failed > 0
}
