package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of sites crawled at once.
const DefaultConcurrency = 4

// BatchProcessor crawls several start URLs concurrently, one fresh
// Pipeline per URL.
type BatchProcessor struct {
	// pipelineFactory builds the pipeline for each job.
	pipelineFactory func() *Pipeline

	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the number of sites crawled at once. Values below 1
// keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.New(slog.DiscardHandler)
	}
	return bp
}

// ProcessBatch runs a pipeline for every start URL. The returned jobs are in
// input order. A failing job does not stop the others; its error is on
// Job.Err. The returned error is non-nil only when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, startURLs []string) ([]*Job, error) {
	jobs := make([]*Job, len(startURLs))
	for i, u := range startURLs {
		jobs[i] = NewJob(u)
	}

	err := bp.run(ctx, jobs, nil)
	return jobs, err
}

// ProcessBatchWithCallback is ProcessBatch calling fn as each job finishes.
// fn runs on the job's goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, startURLs []string, fn func(job *Job, index int)) error {
	jobs := make([]*Job, len(startURLs))
	for i, u := range startURLs {
		jobs[i] = NewJob(u)
	}
	return bp.run(ctx, jobs, fn)
}

func (bp *BatchProcessor) run(ctx context.Context, jobs []*Job, fn func(*Job, int)) error {
	bp.logger.Info("starting batch",
		"sites", len(jobs),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				job.Err = err
				return err
			}

			bp.logger.Info("crawling site",
				"url", job.StartURL,
				"index", i+1,
				"total", len(jobs),
			)

			if err := bp.pipelineFactory().Execute(gctx, job); err != nil {
				bp.logger.Warn("site failed",
					"url", job.StartURL,
					"error", err,
				)
			}
			if fn != nil {
				fn(job, i)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	bp.logger.Info("batch complete",
		"sites", len(jobs),
		"elapsed", time.Since(start),
	)
	return err
}
