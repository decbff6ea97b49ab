package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/arxiv"
	"github.com/starford/ansuz/internal/testutil"
)

// fakeSource serves canned entries per category and counts calls.
type fakeSource struct {
	entries map[string][]arxiv.Entry
	errs    map[string]error
	calls   map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		entries: make(map[string][]arxiv.Entry),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeSource) Fetch(_ context.Context, req arxiv.FetchRequest) ([]arxiv.Entry, error) {
	key := req.Categories[0]
	f.calls[key]++
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.entries[key], nil
}

func testEntry(id, category string, published time.Time) arxiv.Entry {
	return arxiv.Entry{
		ID:         id,
		EntryURL:   "https://arxiv.org/abs/" + id,
		Title:      "Title of " + id,
		Authors:    []string{"A. Author"},
		Summary:    "Abstract of " + id,
		Categories: []string{category},
		Published:  published,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPassFetchesThenSkipsFreshUnit(t *testing.T) {
	db := testutil.TestStore(t)
	src := newFakeSource()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	src.entries["hep-th"] = []arxiv.Entry{
		testEntry("2508.00001v1", "hep-th", now.Add(-time.Hour)),
		testEntry("2508.00002v1", "hep-th", now.Add(-2*time.Hour)),
	}

	ctrl := NewController(db, src, testLogger())
	ctrl.now = func() time.Time { return now }

	opts := PassOptions{
		Specs:      []Spec{{Key: "hep-th", Label: "HEP Theory", Categories: []string{"hep-th"}}},
		Window:     6 * time.Hour,
		MaxResults: 100,
	}

	sum, err := ctrl.Pass(context.Background(), opts)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if sum.Attempted != 1 || sum.Added != 2 || sum.Fetched != 2 {
		t.Errorf("summary = %+v", sum)
	}

	rec, err := db.GetFetchRecord("hep-th")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.ArticleCount != 2 {
		t.Fatalf("fetch record = %+v", rec)
	}

	// A second pass inside the freshness window must not touch the source.
	sum, err = ctrl.Pass(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Attempted != 0 {
		t.Errorf("second pass summary = %+v", sum)
	}
	if src.calls["hep-th"] != 1 {
		t.Errorf("source calls = %d, want 1", src.calls["hep-th"])
	}

	// Forced bypasses the policy.
	opts.Forced = true
	if _, err := ctrl.Pass(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if src.calls["hep-th"] != 2 {
		t.Errorf("forced source calls = %d, want 2", src.calls["hep-th"])
	}
}

func TestPassIsolatesUnitFailures(t *testing.T) {
	db := testutil.TestStore(t)
	src := newFakeSource()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	src.errs["hep-ex"] = fmt.Errorf("connection refused")
	src.entries["hep-th"] = []arxiv.Entry{testEntry("2508.00003v1", "hep-th", now)}

	ctrl := NewController(db, src, testLogger())
	ctrl.now = func() time.Time { return now }

	sum, err := ctrl.Pass(context.Background(), PassOptions{
		Specs: []Spec{
			{Key: "hep-ex", Label: "HEP Experiments", Categories: []string{"hep-ex"}},
			{Key: "hep-th", Label: "HEP Theory", Categories: []string{"hep-th"}},
		},
		Window:     6 * time.Hour,
		MaxResults: 100,
	})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if sum.Failed != 1 || sum.Added != 1 {
		t.Errorf("summary = %+v", sum)
	}

	// The failed unit keeps no fetch record, so the next pass retries it.
	rec, err := db.GetFetchRecord("hep-ex")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("failed unit has fetch record %+v", rec)
	}
	if rec, _ := db.GetFetchRecord("hep-th"); rec == nil {
		t.Error("succeeding unit missing fetch record")
	}
}

func TestPassStampsSummaryTimes(t *testing.T) {
	db := testutil.TestStore(t)
	src := newFakeSource()
	src.entries["hep-th"] = []arxiv.Entry{testEntry("2508.00004v1", "hep-th", time.Now())}

	ctrl := NewController(db, src, testLogger())

	sum, err := ctrl.Pass(context.Background(), PassOptions{
		Specs:      []Spec{{Key: "hep-th", Categories: []string{"hep-th"}}},
		Window:     6 * time.Hour,
		MaxResults: 100,
	})
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if sum.Started.IsZero() || sum.Finished.IsZero() {
		t.Fatalf("summary times not stamped: %+v", sum)
	}
	if sum.Finished.Before(sum.Started) {
		t.Errorf("Finished %v before Started %v", sum.Finished, sum.Started)
	}
}

func TestPassDropsEntriesOutsideRecentWindow(t *testing.T) {
	db := testutil.TestStore(t)
	src := newFakeSource()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	src.entries["hep-th"] = []arxiv.Entry{
		testEntry("2508.00001v1", "hep-th", now.Add(-24*time.Hour)),
		testEntry("2506.00001v1", "hep-th", now.Add(-30*24*time.Hour)),
	}

	ctrl := NewController(db, src, testLogger())
	ctrl.now = func() time.Time { return now }

	sum, err := ctrl.Pass(context.Background(), PassOptions{
		Specs:        []Spec{{Key: "hep-th", Categories: []string{"hep-th"}}},
		Window:       6 * time.Hour,
		RecentWindow: 7 * 24 * time.Hour,
		MaxResults:   100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 1 || sum.Fetched != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if _, err := db.GetByID("2506.00001v1"); err == nil {
		t.Error("stale entry was ingested")
	}
}

func TestPassDropsMalformedEntries(t *testing.T) {
	db := testutil.TestStore(t)
	src := newFakeSource()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	src.entries["hep-th"] = []arxiv.Entry{
		testEntry("2508.00001v1", "hep-th", now),
		testEntry("  ", "hep-th", now),
	}

	ctrl := NewController(db, src, testLogger())
	ctrl.now = func() time.Time { return now }

	sum, err := ctrl.Pass(context.Background(), PassOptions{
		Specs:      []Spec{{Key: "hep-th", Categories: []string{"hep-th"}}},
		Window:     6 * time.Hour,
		MaxResults: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Dropped != 1 || sum.Added != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPassHonorsCancellation(t *testing.T) {
	db := testutil.TestStore(t)
	src := newFakeSource()

	ctrl := NewController(db, src, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ctrl.Pass(ctx, PassOptions{
		Specs:  []Spec{{Key: "hep-th", Categories: []string{"hep-th"}}},
		Window: 6 * time.Hour,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("source called after cancellation: %v", src.calls)
	}
}

func TestFilterKey(t *testing.T) {
	if got := FilterKey("ALICE"); got != "filter_ALICE" {
		t.Errorf("FilterKey = %q", got)
	}
}
