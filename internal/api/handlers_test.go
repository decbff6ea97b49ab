package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/arxiv"
	"github.com/starford/ansuz/internal/notes"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/store"
	syncpkg "github.com/starford/ansuz/internal/sync"
	"github.com/starford/ansuz/internal/testutil"
)

type staticSource struct {
	entries []arxiv.Entry
}

func (s *staticSource) Fetch(context.Context, arxiv.FetchRequest) ([]arxiv.Entry, error) {
	return s.entries, nil
}

type testEnv struct {
	db     *store.DB
	server *httptest.Server
}

func newTestEnv(t *testing.T, src syncpkg.Source, notesDir *notes.Dir) *testEnv {
	t.Helper()
	db := testutil.TestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if src == nil {
		src = &staticSource{}
	}
	ctrl := syncpkg.NewController(db, src, logger)
	runner := syncpkg.NewRunner(ctrl, nil, logger)

	passOpts := func(full, forced bool) syncpkg.PassOptions {
		return syncpkg.PassOptions{
			Specs:      []syncpkg.Spec{{Key: "hep-th", Label: "HEP Theory", Categories: []string{"hep-th"}}},
			Window:     6 * time.Hour,
			MaxResults: 100,
			Forced:     forced,
		}
	}

	h := NewHandler(query.NewService(db), db, notesDir, runner, passOpts, nil)
	srv := httptest.NewServer(NewRouter(h, false, "", nil))
	t.Cleanup(srv.Close)
	return &testEnv{db: db, server: srv}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func seedArticle(t *testing.T, db *store.DB, id string, categories ...string) {
	t.Helper()
	if _, err := db.UpsertArticle(testutil.Candidate(id, categories...)); err != nil {
		t.Fatal(err)
	}
}

func TestListArticles(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-ex")
	seedArticle(t, env.db, "a2", "nucl-ex")

	resp := env.request(t, http.MethodGet, "/articles", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	list := decode[ArticleListResponse](t, resp)
	if list.Count != 2 {
		t.Errorf("count = %d, want 2", list.Count)
	}

	resp = env.request(t, http.MethodGet, "/articles?category=hep-ex", nil)
	list = decode[ArticleListResponse](t, resp)
	if list.Count != 1 || list.Articles[0].ID != "a1" {
		t.Errorf("filtered = %+v", list)
	}
}

func TestGetArticle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-ex")

	resp := env.request(t, http.MethodGet, "/articles/a1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	art := decode[store.Article](t, resp)
	if art.ID != "a1" {
		t.Errorf("ID = %q", art.ID)
	}

	resp = env.request(t, http.MethodGet, "/articles/missing", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing article status = %d, want 404", resp.StatusCode)
	}
}

func TestGetArticleWithEscapedID(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "hep-ph/0005001v1", "hep-ph")

	resp := env.request(t, http.MethodGet, "/articles/hep-ph%2F0005001v1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	art := decode[store.Article](t, resp)
	if art.ID != "hep-ph/0005001v1" {
		t.Errorf("ID = %q", art.ID)
	}
}

func TestSaveAndUnsaveArticle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-ex")

	resp := env.request(t, http.MethodPost, "/articles/a1/save", SaveRequest{Saved: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	st := decode[store.Status](t, resp)
	if !st.IsSaved || st.SavedAt == nil {
		t.Errorf("status = %+v", st)
	}

	resp = env.request(t, http.MethodPost, "/articles/a1/save", SaveRequest{Saved: false})
	st = decode[store.Status](t, resp)
	if st.IsSaved || st.SavedAt != nil {
		t.Errorf("status after unsave = %+v", st)
	}
}

func TestViewedLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-ex")

	resp := env.request(t, http.MethodPost, "/articles/a1/viewed", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark viewed status = %d", resp.StatusCode)
	}
	st, _ := env.db.GetStatus("a1")
	if !st.IsViewed {
		t.Error("IsViewed = false")
	}

	resp = env.request(t, http.MethodDelete, "/articles/a1/viewed", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark unread status = %d", resp.StatusCode)
	}
	st, _ = env.db.GetStatus("a1")
	if st.IsViewed {
		t.Error("IsViewed = true after unread")
	}
}

func TestSetTags(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-ex")

	resp := env.request(t, http.MethodPut, "/articles/a1/tags", TagsRequest{Tags: []string{"To-Read", "lattice"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[map[string][]string](t, resp)
	tags := body["tags"]
	if len(tags) != 2 || tags[0] != "lattice" || tags[1] != "to-read" {
		t.Errorf("tags = %v", tags)
	}

	resp = env.request(t, http.MethodGet, "/tags", nil)
	tagList := decode[TagListResponse](t, resp)
	if len(tagList.Tags) != 2 {
		t.Errorf("tag list = %+v", tagList)
	}
}

func TestCreateNote(t *testing.T) {
	_, dir := testutil.TestNotesDir(t)
	env := newTestEnv(t, nil, dir)
	seedArticle(t, env.db, "a1", "hep-ex")

	resp := env.request(t, http.MethodPost, "/articles/a1/note", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	note := decode[NoteResponse](t, resp)
	if note.Path != "a1.md" || note.ArticleID != "a1" {
		t.Errorf("note = %+v", note)
	}

	st, _ := env.db.GetStatus("a1")
	if st.NotePath != "a1.md" {
		t.Errorf("NotePath = %q", st.NotePath)
	}

	// Repeat call reuses the existing note.
	resp = env.request(t, http.MethodPost, "/articles/a1/note", nil)
	note = decode[NoteResponse](t, resp)
	if note.Path != "a1.md" {
		t.Errorf("repeat note = %+v", note)
	}

	resp = env.request(t, http.MethodPost, "/articles/missing/note", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing article note status = %d", resp.StatusCode)
	}
}

func TestCreateNoteWithoutNotesDir(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-ex")

	resp := env.request(t, http.MethodPost, "/articles/a1/note", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestRefreshRunsPassInBackground(t *testing.T) {
	src := &staticSource{entries: []arxiv.Entry{{
		ID:         "2508.00001v1",
		Title:      "New result",
		Categories: []string{"hep-th"},
		Published:  time.Now().UTC(),
	}}}
	env := newTestEnv(t, src, nil)

	resp := env.request(t, http.MethodPost, "/refresh", RefreshRequest{})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	ack := decode[RefreshAccepted](t, resp)
	if ack.Status != "started" {
		t.Errorf("ack = %+v", ack)
	}

	// The pass runs asynchronously; poll for its summary.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp = env.request(t, http.MethodGet, "/refresh/last", nil)
		if resp.StatusCode == http.StatusOK {
			break
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("no pass summary before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
	sum := decode[syncpkg.Summary](t, resp)
	if sum.Added != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if _, err := env.db.GetByID("2508.00001v1"); err != nil {
		t.Errorf("ingested article missing: %v", err)
	}

	recs := decode[FetchListResponse](t, env.request(t, http.MethodGet, "/fetches", nil))
	if len(recs.Fetches) != 1 || recs.Fetches[0].Key != "hep-th" {
		t.Errorf("fetches = %+v", recs)
	}
}

func TestCounts(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedArticle(t, env.db, "a1", "hep-th")
	seedArticle(t, env.db, "a2", "hep-th")
	seedArticle(t, env.db, "a3", "nucl-ex")

	if err := env.db.SetSaved("a1", true); err != nil {
		t.Fatal(err)
	}
	if err := env.db.MarkViewed("a1"); err != nil {
		t.Fatal(err)
	}
	if err := env.db.SetTags("a2", []string{"to-read"}); err != nil {
		t.Fatal(err)
	}

	resp := env.request(t, http.MethodGet, "/counts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	counts := decode[CountsResponse](t, resp)
	if counts.Total != 3 || counts.Saved != 1 {
		t.Errorf("counts = %+v", counts)
	}
	if counts.UnreadBySpec["hep-th"] != 1 {
		t.Errorf("unread hep-th = %d, want 1", counts.UnreadBySpec["hep-th"])
	}
	if counts.UnreadByTag["to-read"] != 1 {
		t.Errorf("unread to-read = %d, want 1", counts.UnreadByTag["to-read"])
	}
}

func TestLastRefreshEmpty(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := env.request(t, http.MethodGet, "/refresh/last", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}
