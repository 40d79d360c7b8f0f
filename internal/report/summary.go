package report

import (
	"sort"
	"time"

	"github.com/nao1215/seocrawl/internal/model"
)

// StatusClass groups HTTP status codes by their first digit.
type StatusClass string

const (
	// ClassSuccess is 2xx.
	ClassSuccess StatusClass = "2xx"
	// ClassRedirect is 3xx.
	ClassRedirect StatusClass = "3xx"
	// ClassClientError is 4xx.
	ClassClientError StatusClass = "4xx"
	// ClassServerError is 5xx.
	ClassServerError StatusClass = "5xx"
	// ClassFailed means no response was received.
	ClassFailed StatusClass = "failed"
)

// statusClasses is the display order.
var statusClasses = []StatusClass{
	ClassSuccess, ClassRedirect, ClassClientError, ClassServerError, ClassFailed,
}

// ClassOf returns the class of an HTTP status code. Codes outside 200-599
// count as failed.
func ClassOf(status int) StatusClass {
	switch {
	case status >= 200 && status < 300:
		return ClassSuccess
	case status >= 300 && status < 400:
		return ClassRedirect
	case status >= 400 && status < 500:
		return ClassClientError
	case status >= 500 && status < 600:
		return ClassServerError
	default:
		return ClassFailed
	}
}

// DuplicateTitle is a title shared by more than one page.
type DuplicateTitle struct {
	Title string
	URLs  []string
}

// Summary holds the SEO findings derived from a result list.
type Summary struct {
	// StatusCounts counts results per status class.
	StatusCounts map[StatusClass]int

	// HTMLPages counts results with parsed page content.
	HTMLPages int

	// MissingTitle lists HTML pages without a title.
	MissingTitle []string

	// MissingDescription lists HTML pages without a meta description.
	MissingDescription []string

	// MissingH1 lists HTML pages without an h1.
	MissingH1 []string

	// NoIndex lists pages whose robots meta tag forbids indexing.
	NoIndex []string

	// ImagesMissingAlt sums images without alt text.
	ImagesMissingAlt int

	// DuplicateTitles are titles used by several pages, sorted by title.
	DuplicateTitles []DuplicateTitle

	// AverageResponseTime is the mean response time over all results.
	AverageResponseTime time.Duration

	// Slowest is the result with the longest response time.
	Slowest *model.CrawlResult
}

// Summarize computes a Summary over results.
func Summarize(results []*model.CrawlResult) Summary {
	s := Summary{StatusCounts: make(map[StatusClass]int, len(statusClasses))}
	titles := make(map[string][]string)

	var total time.Duration
	for _, r := range results {
		s.StatusCounts[ClassOf(r.StatusCode)]++
		total += r.ResponseTime
		if s.Slowest == nil || r.ResponseTime > s.Slowest.ResponseTime {
			s.Slowest = r
		}

		p := r.Page
		if p == nil {
			continue
		}
		s.HTMLPages++
		if p.Title == "" {
			s.MissingTitle = append(s.MissingTitle, r.URL)
		} else {
			titles[p.Title] = append(titles[p.Title], r.URL)
		}
		if p.MetaDescription == "" {
			s.MissingDescription = append(s.MissingDescription, r.URL)
		}
		if len(p.H1) == 0 {
			s.MissingH1 = append(s.MissingH1, r.URL)
		}
		if p.NoIndex() {
			s.NoIndex = append(s.NoIndex, r.URL)
		}
		s.ImagesMissingAlt += p.ImagesMissingAlt
	}

	if len(results) > 0 {
		s.AverageResponseTime = total / time.Duration(len(results))
	}

	for title, urls := range titles {
		if len(urls) > 1 {
			s.DuplicateTitles = append(s.DuplicateTitles, DuplicateTitle{Title: title, URLs: urls})
		}
	}
	sort.Slice(s.DuplicateTitles, func(i, j int) bool {
		return s.DuplicateTitles[i].Title < s.DuplicateTitles[j].Title
	})
	return s
}

// Issues returns the number of SEO problems found.
func (s Summary) Issues() int {
	n := len(s.MissingTitle) + len(s.MissingDescription) + len(s.MissingH1) + len(s.DuplicateTitles)
	if s.ImagesMissingAlt > 0 {
		n++
	}
	return n
}
