package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/seocrawl/internal/model"
)

const ruleWidth = 70

// TextWriter renders a plain text report for terminal display.
type TextWriter struct {
	baseWriter

	// showPages lists every crawled page.
	showPages bool

	// verbose adds each page's errors to the page list.
	verbose bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithPages lists every crawled page after the summary.
func WithPages(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.showPages = show
	}
}

// WithVerbose prints per-page errors in the page list.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to output.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders report as text.
func (w *TextWriter) Write(report *Report) (int, error) {
	var sb strings.Builder
	summary := Summarize(report.Results)

	w.writeHeader(&sb, report)
	w.writeStatus(&sb, summary)
	w.writeIssues(&sb, summary)
	if w.showPages {
		w.writePages(&sb, report.Results)
	}
	w.writeErrors(&sb, report.Results)
	if report.Diff != nil {
		w.writeDiff(&sb, report)
	}

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *TextWriter) writeHeader(sb *strings.Builder, report *Report) {
	st := report.Stats

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                          SEOCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:      %s\n", st.StartURL)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:        %s\n", st.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(sb, "State:          %s\n", st.State)
	fmt.Fprintf(sb, "Pages Crawled:  %d\n", st.PagesCrawled)
	fmt.Fprintf(sb, "Pages Skipped:  %d\n", st.PagesSkipped)
	fmt.Fprintf(sb, "Errors:         %d\n", st.Errors)
	fmt.Fprintf(sb, "Links Found:    %d\n", st.TotalLinksFound)
	fmt.Fprintf(sb, "Duration:       %.2fs (%.2f pages/s)\n", st.DurationSeconds, st.PagesPerSecond)
	if report.SessionID != "" {
		fmt.Fprintf(sb, "Session:        %s\n", report.SessionID)
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeStatus(sb *strings.Builder, s Summary) {
	section(sb, "STATUS CODES")
	for _, class := range statusClasses {
		fmt.Fprintf(sb, "  %-8s %d\n", class+":", s.StatusCounts[class])
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Average response: %s\n", s.AverageResponseTime.Round(time.Millisecond))
	if s.Slowest != nil {
		fmt.Fprintf(sb, "  Slowest:          %s (%s)\n", s.Slowest.URL, s.Slowest.ResponseTime.Round(time.Millisecond))
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeIssues(sb *strings.Builder, s Summary) {
	section(sb, "SEO ISSUES")

	if s.Issues() == 0 {
		sb.WriteString("  No issues found\n\n")
		return
	}

	writeURLs(sb, "Missing title", s.MissingTitle)
	writeURLs(sb, "Missing meta description", s.MissingDescription)
	writeURLs(sb, "Missing h1", s.MissingH1)
	writeURLs(sb, "Marked noindex", s.NoIndex)
	if s.ImagesMissingAlt > 0 {
		fmt.Fprintf(sb, "[!] Images without alt text: %d\n\n", s.ImagesMissingAlt)
	}
	for _, d := range s.DuplicateTitles {
		writeURLs(sb, fmt.Sprintf("Duplicate title %q", d.Title), d.URLs)
	}
}

func writeURLs(sb *strings.Builder, label string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(sb, "[!] %s (%d)\n", label, len(urls))
	for _, u := range urls {
		fmt.Fprintf(sb, "    - %s\n", u)
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writePages(sb *strings.Builder, results []*model.CrawlResult) {
	section(sb, "PAGES")
	for _, r := range results {
		status := "ERR"
		if r.StatusCode != 0 {
			status = fmt.Sprintf("%d", r.StatusCode)
		}
		fmt.Fprintf(sb, "  [%s] d=%d %s", status, r.Depth, r.URL)
		if r.Title != "" {
			fmt.Fprintf(sb, "  %q", truncateString(r.Title, 60))
		}
		sb.WriteString("\n")
		if w.verbose {
			for _, e := range r.Errors {
				fmt.Fprintf(sb, "        ! %s\n", e)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeErrors(sb *strings.Builder, results []*model.CrawlResult) {
	var failed []*model.CrawlResult
	for _, r := range results {
		if r.HasErrors() {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}

	section(sb, "ERRORS")
	for _, r := range failed {
		fmt.Fprintf(sb, "  %s\n", r.URL)
		for _, e := range r.Errors {
			fmt.Fprintf(sb, "    %s\n", e)
		}
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeDiff(sb *strings.Builder, report *Report) {
	d := report.Diff
	section(sb, "CHANGES SINCE "+d.OldSession)

	if !d.HasChanges() {
		sb.WriteString("  No changes\n\n")
		return
	}
	for _, u := range d.Added {
		fmt.Fprintf(sb, "  [+] %s\n", u)
	}
	for _, u := range d.Removed {
		fmt.Fprintf(sb, "  [-] %s\n", u)
	}
	for _, c := range d.StatusChanged {
		fmt.Fprintf(sb, "  [~] %s %d -> %d\n", c.URL, c.OldStatus, c.NewStatus)
	}
	for _, c := range d.ContentChanged {
		fmt.Fprintf(sb, "  [*] %s content changed\n", c.URL)
	}
	sb.WriteString("\n")
}
