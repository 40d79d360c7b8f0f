package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/seocrawl/internal/model"
)

// MarkdownWriter renders a report as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write renders report as Markdown.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := Summarize(report.Results)

	w.writeHeader(md, report)
	w.writeStatus(md, summary)
	w.writeIssues(md, summary)
	w.writePages(md, report.Results)
	if report.Diff != nil {
		w.writeDiff(md, report)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	st := report.Stats

	md.H1("SEO Crawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Start URL", "`" + st.StartURL + "`"},
		{"State", st.State},
	}
	if !st.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", st.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}
	rows = append(rows,
		[]string{"Pages Crawled", strconv.Itoa(st.PagesCrawled)},
		[]string{"Pages Skipped", strconv.Itoa(st.PagesSkipped)},
		[]string{"Errors", strconv.Itoa(st.Errors)},
		[]string{"Links Found", strconv.Itoa(st.TotalLinksFound)},
		[]string{"Duration", fmt.Sprintf("%.2fs", st.DurationSeconds)},
	)
	if report.SessionID != "" {
		rows = append(rows, []string{"Session", "`" + report.SessionID + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeStatus(md *markdown.Markdown, s Summary) {
	md.H2("Status Codes")
	md.PlainText("")

	rows := make([][]string, 0, len(statusClasses)+1)
	total := 0
	for _, class := range statusClasses {
		rows = append(rows, []string{string(class), strconv.Itoa(s.StatusCounts[class])})
		total += s.StatusCounts[class]
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(total) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Class", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")

	if total > 0 {
		w.writePieChart(md, s)
		md.PlainTextf("Average response time: %s", s.AverageResponseTime.Round(time.Millisecond))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Status Code Distribution"),
		piechart.WithShowData(true),
	)
	for _, class := range statusClasses {
		if n := s.StatusCounts[class]; n > 0 {
			chart.LabelAndIntValue(string(class), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeIssues(md *markdown.Markdown, s Summary) {
	md.H2("SEO Issues")
	md.PlainText("")

	switch {
	case s.StatusCounts[ClassServerError] > 0 || s.StatusCounts[ClassFailed] > 0:
		md.Cautionf("%d page(s) failed or returned a server error.",
			s.StatusCounts[ClassServerError]+s.StatusCounts[ClassFailed])
	case s.StatusCounts[ClassClientError] > 0:
		md.Warningf("%d page(s) returned a client error.", s.StatusCounts[ClassClientError])
	case s.Issues() > 0:
		md.Importantf("%d SEO issue(s) found.", s.Issues())
	default:
		md.Tip("No SEO issues found.")
	}
	md.PlainText("")

	if s.Issues() == 0 {
		return
	}

	rows := [][]string{
		{"Missing title", strconv.Itoa(len(s.MissingTitle))},
		{"Missing meta description", strconv.Itoa(len(s.MissingDescription))},
		{"Missing h1", strconv.Itoa(len(s.MissingH1))},
		{"Marked noindex", strconv.Itoa(len(s.NoIndex))},
		{"Duplicate titles", strconv.Itoa(len(s.DuplicateTitles))},
		{"Images without alt", strconv.Itoa(s.ImagesMissingAlt)},
	}
	md.Table(markdown.TableSet{
		Header: []string{"Issue", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(s.MissingTitle) > 0 {
		md.PlainText("### Missing title")
		md.PlainText("")
		md.BulletList(s.MissingTitle...)
		md.PlainText("")
	}
	if len(s.MissingDescription) > 0 {
		md.Details("Pages without a meta description", joinLines(s.MissingDescription))
		md.PlainText("")
	}
	for _, d := range s.DuplicateTitles {
		md.Details("Duplicate title: "+d.Title, joinLines(d.URLs))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, results []*model.CrawlResult) {
	md.H2("Pages")
	md.PlainText("")

	if len(results) == 0 {
		md.PlainText("No pages crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		status := "-"
		if r.StatusCode != 0 {
			status = strconv.Itoa(r.StatusCode)
		}
		title := r.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			truncateString(r.URL, 80),
			status,
			strconv.Itoa(r.Depth),
			r.ResponseTime.Round(time.Millisecond).String(),
			truncateString(title, 50),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Depth", "Time", "Title"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeDiff(md *markdown.Markdown, report *Report) {
	d := report.Diff
	md.H2("Changes")
	md.PlainText("")
	md.PlainTextf("Compared with session `%s`.", d.OldSession)
	md.PlainText("")

	if !d.HasChanges() {
		md.Note("No changes since the previous crawl.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(d.Added)+len(d.Removed)+len(d.StatusChanged)+len(d.ContentChanged))
	for _, u := range d.Added {
		rows = append(rows, []string{"added", u, "-"})
	}
	for _, u := range d.Removed {
		rows = append(rows, []string{"removed", u, "-"})
	}
	for _, c := range d.StatusChanged {
		rows = append(rows, []string{"status", c.URL, fmt.Sprintf("%d → %d", c.OldStatus, c.NewStatus)})
	}
	for _, c := range d.ContentChanged {
		rows = append(rows, []string{"content", c.URL, truncateString(c.OldHash, 12) + " → " + truncateString(c.NewHash, 12)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Change", "URL", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [seocrawl](https://github.com/nao1215/seocrawl)*")
}

func joinLines(lines []string) string {
	return "- " + strings.Join(lines, "\n- ")
}
