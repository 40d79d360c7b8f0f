package database

import (
	"context"
	"sort"

	"github.com/nao1215/seocrawl/internal/model"
)

// StatusChange is a URL whose status code differs between two sessions.
type StatusChange struct {
	URL       string `json:"url"`
	OldStatus int    `json:"old_status"`
	NewStatus int    `json:"new_status"`
}

// ContentChange is a URL whose body hash differs between two sessions.
type ContentChange struct {
	URL     string `json:"url"`
	OldHash string `json:"old_hash"`
	NewHash string `json:"new_hash"`
}

// Diff lists what changed from one session to a later one. Each list is
// sorted by URL.
type Diff struct {
	OldSession string `json:"old_session"`
	NewSession string `json:"new_session"`

	// Added are URLs only in the newer session.
	Added []string `json:"added"`

	// Removed are URLs only in the older session.
	Removed []string `json:"removed"`

	// StatusChanged are URLs present in both with different status codes.
	StatusChanged []StatusChange `json:"status_changed"`

	// ContentChanged are URLs present in both with the same status but a
	// different body hash.
	ContentChanged []ContentChange `json:"content_changed"`
}

// HasChanges reports whether anything differs.
func (d *Diff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 ||
		len(d.StatusChanged) > 0 || len(d.ContentChanged) > 0
}

// CompareSessions diffs the results of oldID against newID.
func (s *SessionDB) CompareSessions(ctx context.Context, oldID, newID string) (*Diff, error) {
	oldResults, err := s.GetResults(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newResults, err := s.GetResults(ctx, newID)
	if err != nil {
		return nil, err
	}

	d := CompareResults(oldResults, newResults)
	d.OldSession = oldID
	d.NewSession = newID
	return d, nil
}

// CompareResults diffs two result lists by URL.
func CompareResults(oldResults, newResults []*model.CrawlResult) *Diff {
	oldByURL := make(map[string]*model.CrawlResult, len(oldResults))
	for _, r := range oldResults {
		oldByURL[r.URL] = r
	}
	newByURL := make(map[string]*model.CrawlResult, len(newResults))
	for _, r := range newResults {
		newByURL[r.URL] = r
	}

	d := &Diff{
		Added:          []string{},
		Removed:        []string{},
		StatusChanged:  []StatusChange{},
		ContentChanged: []ContentChange{},
	}

	for u, nr := range newByURL {
		or, ok := oldByURL[u]
		if !ok {
			d.Added = append(d.Added, u)
			continue
		}
		switch {
		case or.StatusCode != nr.StatusCode:
			d.StatusChanged = append(d.StatusChanged, StatusChange{URL: u, OldStatus: or.StatusCode, NewStatus: nr.StatusCode})
		case or.Hash != nr.Hash:
			d.ContentChanged = append(d.ContentChanged, ContentChange{URL: u, OldHash: or.Hash, NewHash: nr.Hash})
		}
	}
	for u := range oldByURL {
		if _, ok := newByURL[u]; !ok {
			d.Removed = append(d.Removed, u)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.StatusChanged, func(i, j int) bool { return d.StatusChanged[i].URL < d.StatusChanged[j].URL })
	sort.Slice(d.ContentChanged, func(i, j int) bool { return d.ContentChanged[i].URL < d.ContentChanged[j].URL })
	return d
}
