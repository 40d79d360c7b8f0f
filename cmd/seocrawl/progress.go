package main

import (
	"context"
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/nao1215/seocrawl/internal/model"
	"github.com/nao1215/seocrawl/internal/pipeline"
)

// progress draws one bar per crawled site. A nil *progress draws nothing.
type progress struct {
	p *mpb.Progress
}

func newProgress(w io.Writer, enabled bool) *progress {
	if !enabled {
		return nil
	}
	return &progress{p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(40))}
}

// add returns the bar of one site. Its total is the page limit; it
// completes early when the crawl runs out of pages.
func (pr *progress) add(name string, total int) *siteBar {
	if pr == nil {
		return nil
	}
	bar := pr.p.AddBar(int64(total),
		mpb.BarOptional(mpb.BarRemoveOnComplete(), false),
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("[%d / %d]", decor.WCSyncWidth),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), "done",
			),
		),
	)
	return &siteBar{bar: bar, start: time.Now()}
}

// wait blocks until every bar has been drawn for the last time.
func (pr *progress) wait() {
	if pr == nil {
		return
	}
	pr.p.Wait()
}

// siteBar is the bar of one site. A nil *siteBar ignores every call.
type siteBar struct {
	bar   *mpb.Bar
	start time.Time
	last  time.Time
}

// increment is a crawler.WithOnResult callback. The Spider calls it from its
// coordinator goroutine only.
func (b *siteBar) increment(*model.CrawlResult) {
	if b == nil {
		return
	}
	now := time.Now()
	prev := b.last
	if prev.IsZero() {
		prev = b.start
	}
	b.last = now
	b.bar.EwmaIncrement(now.Sub(prev))
}

// done marks the bar complete at its current count.
func (b *siteBar) done() {
	if b == nil {
		return
	}
	b.bar.SetTotal(-1, true)
}

// trackedCrawler completes the site's bar when the crawl returns.
type trackedCrawler struct {
	pipeline.Crawler
	bar *siteBar
}

func (c *trackedCrawler) Crawl(ctx context.Context, startURL string) ([]*model.CrawlResult, error) {
	defer c.bar.done()
	return c.Crawler.Crawl(ctx, startURL)
}
