package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/seocrawl/internal/database"
	"github.com/nao1215/seocrawl/internal/model"
	"github.com/nao1215/seocrawl/internal/report"
)

// Job is the state of one start URL as it moves through a Pipeline.
type Job struct {
	// StartURL is the URL given by the user.
	StartURL string

	// Results are the crawl results in crawl order.
	Results []*model.CrawlResult

	// Stats are the final crawl counters.
	Stats model.CrawlStats

	// SessionID is set once the crawl has been stored.
	SessionID string

	// Diff compares the crawl with the previous stored session, if any.
	Diff *database.Diff

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string

	// Err is the first step error.
	Err error
}

// NewJob returns a Job for startURL.
func NewJob(startURL string) *Job {
	return &Job{StartURL: startURL}
}

// Report returns the job as a report.Report.
func (j *Job) Report() *report.Report {
	return &report.Report{
		Stats:     j.Stats,
		Results:   j.Results,
		SessionID: j.SessionID,
		Diff:      j.Diff,
	}
}

// Step is one stage of a Pipeline.
type Step interface {
	// Do runs the step. Errors that should stop the job are returned;
	// problems that only concern single pages are kept in the results.
	Do(ctx context.Context, job *Job) error

	// Name is used in logs and in Job.PerformedSteps.
	Name() string
}

// Pipeline runs its steps in order.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps running later steps after a failure.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError runs the remaining steps after one fails.
// The first error is still recorded on the Job and returned.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step on job. Cancellation is checked before each step.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"url", job.StartURL,
				"reason", err,
			)
			if job.Err == nil {
				job.Err = err
			}
			return err
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"url", job.StartURL,
		)

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"url", job.StartURL,
				"error", err,
			)
			if job.Err == nil {
				job.Err = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		job.PerformedSteps = append(job.PerformedSteps, step.Name())
	}
	return job.Err
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
