package report

import (
	"io"

	"github.com/nao1215/seocrawl/internal/database"
	"github.com/nao1215/seocrawl/internal/model"
)

// Report is everything a writer renders for one crawl.
type Report struct {
	// Stats are the final crawl counters.
	Stats model.CrawlStats `json:"stats"`

	// Results are the crawl results in crawl order.
	Results []*model.CrawlResult `json:"results"`

	// SessionID is the stored session id, empty when the crawl was not saved.
	SessionID string `json:"session_id,omitempty"`

	// Diff compares this crawl with an earlier session. Optional.
	Diff *database.Diff `json:"diff,omitempty"`
}

// Writer renders a Report.
type Writer interface {
	// Write renders report and returns the number of bytes written.
	Write(report *Report) (int, error)
}

// MultiWriter writes the same report through several writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter returns a Writer that writes to all writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write stops at the first error and returns the bytes written so far.
func (m *MultiWriter) Write(report *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds the destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString shortens s to maxLen bytes, ending in "..." when cut.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
