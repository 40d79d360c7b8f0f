package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/seocrawl/internal/database"
	"github.com/nao1215/seocrawl/internal/model"
)

func page(url string, status int, title, desc string) *model.CrawlResult {
	r := model.NewCrawlResult(url, 1)
	r.StatusCode = status
	r.ResponseTime = 100 * time.Millisecond
	if status == 200 {
		r.ContentType = "text/html"
		r.Title = title
		r.Page = &model.PageInfo{Title: title, MetaDescription: desc, H1: []string{title}}
	}
	return r
}

func createTestReport() *Report {
	home := page("https://example.com/", 200, "Home", "Welcome")
	home.Depth = 0
	slow := page("https://example.com/about", 200, "About", "")
	slow.ResponseTime = 900 * time.Millisecond
	dup := page("https://example.com/about-us", 200, "About", "About us")
	missing := page("https://example.com/gone", 404, "", "")
	failed := page("https://example.com/down", 0, "", "")
	failed.AddError("connection refused")

	results := []*model.CrawlResult{home, slow, dup, missing, failed}
	return &Report{
		Stats: model.CrawlStats{
			StartURL:        "https://example.com/",
			State:           "completed",
			PagesCrawled:    len(results),
			PagesSkipped:    1,
			Errors:          1,
			TotalLinksFound: 12,
			StartedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			FinishedAt:      time.Date(2026, 1, 2, 3, 4, 15, 0, time.UTC),
			DurationSeconds: 10,
			PagesPerSecond:  0.5,
		},
		Results:   results,
		SessionID: "0b7e4c1a-session",
	}
}

func TestClassOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   StatusClass
	}{
		{200, ClassSuccess},
		{204, ClassSuccess},
		{301, ClassRedirect},
		{404, ClassClientError},
		{503, ClassServerError},
		{0, ClassFailed},
		{999, ClassFailed},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.status); got != tt.want {
			t.Errorf("ClassOf(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	t.Run("counts statuses and issues", func(t *testing.T) {
		t.Parallel()

		s := Summarize(createTestReport().Results)

		if s.StatusCounts[ClassSuccess] != 3 {
			t.Errorf("expected 3 successful pages, got %d", s.StatusCounts[ClassSuccess])
		}
		if s.StatusCounts[ClassClientError] != 1 || s.StatusCounts[ClassFailed] != 1 {
			t.Errorf("unexpected status counts: %v", s.StatusCounts)
		}
		if s.HTMLPages != 3 {
			t.Errorf("expected 3 HTML pages, got %d", s.HTMLPages)
		}
		if len(s.MissingDescription) != 1 || s.MissingDescription[0] != "https://example.com/about" {
			t.Errorf("unexpected missing descriptions: %v", s.MissingDescription)
		}
		if len(s.DuplicateTitles) != 1 || s.DuplicateTitles[0].Title != "About" {
			t.Fatalf("unexpected duplicate titles: %v", s.DuplicateTitles)
		}
		if len(s.DuplicateTitles[0].URLs) != 2 {
			t.Errorf("expected 2 URLs sharing the title, got %v", s.DuplicateTitles[0].URLs)
		}
		if s.Slowest == nil || s.Slowest.URL != "https://example.com/about" {
			t.Errorf("unexpected slowest page: %v", s.Slowest)
		}
		if s.AverageResponseTime != 260*time.Millisecond {
			t.Errorf("expected average 260ms, got %s", s.AverageResponseTime)
		}
		if s.Issues() != 2 {
			t.Errorf("expected 2 issues, got %d", s.Issues())
		}
	})

	t.Run("empty results", func(t *testing.T) {
		t.Parallel()

		s := Summarize(nil)
		if s.Slowest != nil || s.AverageResponseTime != 0 || s.Issues() != 0 {
			t.Errorf("expected empty summary, got %+v", s)
		}
	})
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and status codes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewTextWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, buffer has %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"SEOCRAWL REPORT",
			"Start URL:      https://example.com/",
			"Pages Skipped:  1",
			"Session:        0b7e4c1a-session",
			"STATUS CODES",
			"4xx:",
			"Slowest:          https://example.com/about (900ms)",
			`Duplicate title "About" (2)`,
			"connection refused",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "PAGES\n") {
			t.Error("page list should be off by default")
		}
	})

	t.Run("lists pages with verbose errors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewTextWriter(&buf, WithPages(true), WithVerbose(true))
		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, `[200] d=0 https://example.com/  "Home"`) {
			t.Error("expected page line for the start URL")
		}
		if !strings.Contains(output, "[ERR] d=1 https://example.com/down") {
			t.Error("expected failed page to be marked ERR")
		}
		if !strings.Contains(output, "! connection refused") {
			t.Error("expected verbose page errors")
		}
	})

	t.Run("clean crawl has no issues", func(t *testing.T) {
		t.Parallel()

		report := &Report{
			Stats:   model.CrawlStats{StartURL: "https://example.com/", State: "completed", PagesCrawled: 1},
			Results: []*model.CrawlResult{page("https://example.com/", 200, "Home", "Welcome")},
		}
		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No issues found") {
			t.Error("expected no issues message")
		}
		if strings.Contains(buf.String(), "ERRORS") {
			t.Error("errors section should be omitted")
		}
	})

	t.Run("writes diff", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Diff = &database.Diff{
			OldSession:    "old-id",
			Added:         []string{"https://example.com/new"},
			Removed:       []string{"https://example.com/old"},
			StatusChanged: []database.StatusChange{{URL: "https://example.com/gone", OldStatus: 200, NewStatus: 404}},
		}

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"CHANGES SINCE old-id",
			"[+] https://example.com/new",
			"[-] https://example.com/old",
			"[~] https://example.com/gone 200 -> 404",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("outputs valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithVersion("1.2.3")).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var parsed struct {
			Version   string               `json:"version"`
			SessionID string               `json:"session_id"`
			Stats     model.CrawlStats     `json:"stats"`
			Results   []*model.CrawlResult `json:"results"`
		}
		if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if parsed.Version != "1.2.3" {
			t.Errorf("expected version 1.2.3, got %q", parsed.Version)
		}
		if parsed.SessionID != "0b7e4c1a-session" {
			t.Errorf("unexpected session id %q", parsed.SessionID)
		}
		if parsed.Stats.StartURL != "https://example.com/" || len(parsed.Results) != 5 {
			t.Errorf("unexpected document: %+v", parsed)
		}
		if parsed.Results[1].ResponseTime != 900*time.Millisecond {
			t.Errorf("expected response time to round-trip, got %s", parsed.Results[1].ResponseTime)
		}
	})

	t.Run("compact output by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Errorf("expected compact output (1 line), got %d lines", len(lines))
		}
		if strings.Contains(buf.String(), `"version"`) {
			t.Error("version should be omitted when unset")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"stats\": {") {
			t.Error("expected two-space indentation")
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n>\t\"stats\"") {
			t.Error("expected prefix and tab indentation")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected a non-zero byte count")
		}

		output := buf.String()
		for _, want := range []string{
			"# SEO Crawl Report",
			"`https://example.com/`",
			"## Status Codes",
			"```mermaid",
			"Status Code Distribution",
			"## SEO Issues",
			"[!CAUTION]",
			"## Pages",
			"https://example.com/about-us",
			"Duplicate title: About",
			"seocrawl",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "## Changes") {
			t.Error("changes section should be omitted without a diff")
		}
	})

	t.Run("clean crawl gets a tip", func(t *testing.T) {
		t.Parallel()

		report := &Report{
			Stats:   model.CrawlStats{StartURL: "https://example.com/", State: "completed"},
			Results: []*model.CrawlResult{page("https://example.com/", 200, "Home", "Welcome")},
		}
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No SEO issues found.") {
			t.Error("expected tip for a clean crawl")
		}
	})

	t.Run("no pages", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(&Report{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No pages crawled.") {
			t.Error("expected empty page message")
		}
		if strings.Contains(buf.String(), "mermaid") {
			t.Error("chart should be omitted without results")
		}
	})

	t.Run("writes diff", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Diff = &database.Diff{
			OldSession:     "old-id",
			ContentChanged: []database.ContentChange{{URL: "https://example.com/", OldHash: "aaaa", NewHash: "bbbb"}},
		}
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Changes") || !strings.Contains(output, "`old-id`") {
			t.Error("expected changes section")
		}
		if !strings.Contains(output, "aaaa → bbbb") {
			t.Error("expected content change detail")
		}
	})

	t.Run("unchanged diff", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Diff = &database.Diff{OldSession: "old-id"}
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No changes since the previous crawl.") {
			t.Error("expected no changes note")
		}
	})
}

type errWriter struct{}

func (errWriter) Write(*Report) (int, error) { return 3, errors.New("boom") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		multi := NewMultiWriter(NewTextWriter(&text), NewJSONWriter(&js))

		n, err := multi.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("expected %d bytes, got %d", text.Len()+js.Len(), n)
		}
		if !strings.HasPrefix(js.String(), "{") {
			t.Error("expected JSON in the second writer")
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		multi := NewMultiWriter(errWriter{}, NewJSONWriter(&after))

		n, err := multi.Write(createTestReport())
		if err == nil {
			t.Fatal("expected error")
		}
		if n != 3 {
			t.Errorf("expected 3 bytes, got %d", n)
		}
		if after.Len() != 0 {
			t.Error("writers after the failing one should not run")
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
