package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/seocrawl/internal/database"
	"github.com/nao1215/seocrawl/internal/model"
	"github.com/nao1215/seocrawl/internal/report"
)

// Step names.
const (
	StepCrawl   = "crawl"
	StepCompare = "compare"
	StepSave    = "save"
	StepReport  = "report"
)

// Crawler crawls one site. *crawler.Spider implements it.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) ([]*model.CrawlResult, error)
	Stats() model.CrawlStats
}

// CrawlerFactory returns a fresh Crawler for startURL, so per-site settings
// can be applied and no crawl state is shared between jobs.
type CrawlerFactory func(startURL string) (Crawler, error)

// CrawlStep crawls the job's start URL.
type CrawlStep struct {
	newCrawler CrawlerFactory
	logger     *slog.Logger
}

// NewCrawlStep creates a CrawlStep.
func NewCrawlStep(factory CrawlerFactory, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CrawlStep{newCrawler: factory, logger: logger}
}

// Name implements Step.
func (s *CrawlStep) Name() string {
	return StepCrawl
}

// Do runs the crawl. On cancellation the partial results are kept on the
// job and the context error is returned.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	c, err := s.newCrawler(job.StartURL)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	results, err := c.Crawl(ctx, job.StartURL)
	job.Results = results
	job.Stats = c.Stats()
	if err != nil {
		return err
	}

	s.logger.Info("crawl finished",
		"url", job.StartURL,
		"pages", job.Stats.PagesCrawled,
		"skipped", job.Stats.PagesSkipped,
		"errors", job.Stats.Errors,
	)
	return nil
}

// SessionStore is the part of *database.SessionDB the steps use.
type SessionStore interface {
	SaveSession(ctx context.Context, stats model.CrawlStats, results []*model.CrawlResult) (string, error)
	ListSessions(ctx context.Context, startURL string, limit int) ([]database.Session, error)
	GetResults(ctx context.Context, sessionID string) ([]*model.CrawlResult, error)
}

// CompareStep diffs the job against the newest stored session of the same
// start URL. Nothing is recorded when there is no earlier session.
type CompareStep struct {
	store SessionStore
}

// NewCompareStep creates a CompareStep.
func NewCompareStep(store SessionStore) *CompareStep {
	return &CompareStep{store: store}
}

// Name implements Step.
func (s *CompareStep) Name() string {
	return StepCompare
}

// Do implements Step.
func (s *CompareStep) Do(ctx context.Context, job *Job) error {
	sessions, err := s.store.ListSessions(ctx, job.Stats.StartURL, 2)
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		if sess.ID == job.SessionID {
			continue
		}
		previous, err := s.store.GetResults(ctx, sess.ID)
		if err != nil {
			return err
		}
		job.Diff = database.CompareResults(previous, job.Results)
		job.Diff.OldSession = sess.ID
		job.Diff.NewSession = job.SessionID
		return nil
	}
	return nil
}

// SaveStep stores the job as a new session.
type SaveStep struct {
	store SessionStore
}

// NewSaveStep creates a SaveStep.
func NewSaveStep(store SessionStore) *SaveStep {
	return &SaveStep{store: store}
}

// Name implements Step.
func (s *SaveStep) Name() string {
	return StepSave
}

// Do implements Step.
func (s *SaveStep) Do(ctx context.Context, job *Job) error {
	if job.Stats.StartURL == "" {
		return ErrNotCrawled
	}
	id, err := s.store.SaveSession(ctx, job.Stats, job.Results)
	if err != nil {
		return err
	}
	job.SessionID = id
	if job.Diff != nil {
		job.Diff.NewSession = id
	}
	return nil
}

// ReportStep writes the job through a report.Writer. One ReportStep may be
// shared by concurrent pipelines; writes are serialized.
type ReportStep struct {
	writer report.Writer
	mu     sync.Mutex
}

// NewReportStep creates a ReportStep.
func NewReportStep(w report.Writer) *ReportStep {
	return &ReportStep{writer: w}
}

// Name implements Step.
func (s *ReportStep) Name() string {
	return StepReport
}

// Do implements Step.
func (s *ReportStep) Do(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(job.Report()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
