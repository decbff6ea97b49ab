package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/arxiv"
	"github.com/starford/ansuz/internal/store"
)

// Source is the external article source. Network and timeout errors from a
// single call surface as one failure for that fetch unit.
type Source interface {
	Fetch(ctx context.Context, req arxiv.FetchRequest) ([]arxiv.Entry, error)
}

// Spec is one configured fetch unit: a single category, or a named filter
// spanning several categories and/or a text query. Filters share one fetch
// record keyed by the filter's own identity.
type Spec struct {
	Key        string
	Label      string
	Categories []string
	Query      string
}

// FilterKey builds the fetch-record key for a named filter.
func FilterKey(name string) string {
	return "filter_" + name
}

// PassOptions parameterize one synchronization pass.
type PassOptions struct {
	Specs []Spec

	// Window is the freshness window consulted by the staleness policy.
	Window time.Duration

	// RecentWindow, when positive, drops returned articles published
	// earlier than now-RecentWindow before ingestion.
	RecentWindow time.Duration

	// MaxResults caps each remote call.
	MaxResults int

	// Forced bypasses the staleness policy for every spec.
	Forced bool
}

// Summary aggregates the outcome of one pass. Per-unit failures are counted
// here and logged; they never abort sibling units.
type Summary struct {
	Attempted int       `json:"attempted"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Fetched   int       `json:"fetched"`
	Added     int       `json:"added"`
	Merged    int       `json:"merged"`
	Dropped   int       `json:"dropped"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Controller orchestrates synchronization passes over the configured specs.
type Controller struct {
	store  store.ArticleStore
	source Source
	logger *slog.Logger
	now    func() time.Time
}

// NewController creates a sync controller.
func NewController(st store.ArticleStore, src Source, logger *slog.Logger) *Controller {
	return &Controller{store: st, source: src, logger: logger, now: time.Now}
}

// Pass runs one synchronization pass. For each spec it consults the
// staleness policy, fetches from the source when due, normalizes and
// upserts the results, and records the fetch. Source failures are isolated
// per spec and leave that spec's fetch record untouched so the next pass
// retries it. Storage faults abort the pass and are returned alongside the
// partial summary. Cancellation is honored between specs, never mid-unit.
func (c *Controller) Pass(ctx context.Context, opts PassOptions) (sum Summary, err error) {
	sum.Started = c.now()
	defer func() { sum.Finished = c.now() }()

	for _, spec := range opts.Specs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, err := c.store.GetFetchRecord(spec.Key)
		if err != nil {
			return sum, err
		}
		if !ShouldFetch(rec, opts.Window, opts.Forced, c.now()) {
			c.logger.Debug("sync: skipping fresh unit", slog.String("key", spec.Key))
			sum.Skipped++
			continue
		}

		sum.Attempted++
		entries, err := c.source.Fetch(ctx, arxiv.FetchRequest{
			Categories: spec.Categories,
			Query:      spec.Query,
			MaxResults: opts.MaxResults,
		})
		if err != nil {
			c.logger.Warn("sync: fetch failed",
				slog.String("key", spec.Key),
				slog.String("error", err.Error()))
			sum.Failed++
			continue
		}

		if opts.RecentWindow > 0 {
			entries = filterRecent(entries, c.now().Add(-opts.RecentWindow))
		}

		cands := make([]store.Candidate, 0, len(entries))
		for _, e := range entries {
			cand, err := arxiv.Normalize(e)
			if err != nil {
				c.logger.Warn("sync: dropping malformed entry",
					slog.String("key", spec.Key),
					slog.String("error", err.Error()))
				sum.Dropped++
				continue
			}
			cands = append(cands, cand)
		}

		batch, err := c.store.UpsertBatch(cands)
		if err != nil {
			return sum, err
		}
		sum.Fetched += len(entries)
		sum.Added += batch.Inserted
		sum.Merged += batch.Merged
		sum.Dropped += batch.Dropped

		if err := c.store.RecordFetch(spec.Key, spec.Label, batch.Inserted); err != nil {
			return sum, err
		}

		c.logger.Info("sync: unit complete",
			slog.String("key", spec.Key),
			slog.Int("fetched", len(entries)),
			slog.Int("added", batch.Inserted))
	}

	return sum, nil
}

// filterRecent keeps entries published at or after cutoff. The feed is
// usually newest-first but remote ordering is not guaranteed, so every
// entry is checked.
func filterRecent(entries []arxiv.Entry, cutoff time.Time) []arxiv.Entry {
	out := entries[:0]
	for _, e := range entries {
		if !e.Published.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Canceled reports whether err is a context cancellation from an abandoned
// pass.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
