package store

import (
	"testing"
	"time"
)

func TestSetSavedIdempotent(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return first }
	if err := db.SetSaved("a1", true); err != nil {
		t.Fatal(err)
	}

	// Saving again later must not bump the timestamp.
	db.now = func() time.Time { return first.Add(time.Hour) }
	if err := db.SetSaved("a1", true); err != nil {
		t.Fatal(err)
	}

	st, err := db.GetStatus("a1")
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsSaved {
		t.Error("IsSaved = false, want true")
	}
	if st.SavedAt == nil || !st.SavedAt.Equal(first) {
		t.Errorf("SavedAt = %v, want %v", st.SavedAt, first)
	}
}

func TestUnsaveClearsTimestamp(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))

	if err := db.SetSaved("a1", true); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSaved("a1", false); err != nil {
		t.Fatal(err)
	}

	st, _ := db.GetStatus("a1")
	if st.IsSaved {
		t.Error("IsSaved = true after unsave")
	}
	if st.SavedAt != nil {
		t.Errorf("SavedAt = %v, want nil", st.SavedAt)
	}

	if arts, _ := db.GetSaved(); len(arts) != 0 {
		t.Errorf("GetSaved = %v, want empty", ids(arts))
	}
}

func TestGetSavedOrdersBySavedAt(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))
	mustUpsert(t, db, testCandidate("a2", "hep-ex"))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	if err := db.SetSaved("a1", true); err != nil {
		t.Fatal(err)
	}
	db.now = func() time.Time { return base.Add(time.Minute) }
	if err := db.SetSaved("a2", true); err != nil {
		t.Fatal(err)
	}

	arts, err := db.GetSaved()
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 2 || arts[0].ID != "a2" {
		t.Errorf("saved order = %v, want most recently saved first", ids(arts))
	}
}

func TestMarkViewedKeepsFirstTimestamp(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))

	first := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return first }
	if err := db.MarkViewed("a1"); err != nil {
		t.Fatal(err)
	}
	db.now = func() time.Time { return first.Add(2 * time.Hour) }
	if err := db.MarkViewed("a1"); err != nil {
		t.Fatal(err)
	}

	st, _ := db.GetStatus("a1")
	if !st.IsViewed {
		t.Error("IsViewed = false, want true")
	}
	if st.ViewedAt == nil || !st.ViewedAt.Equal(first) {
		t.Errorf("ViewedAt = %v, want %v", st.ViewedAt, first)
	}
}

func TestMarkUnread(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))

	if err := db.MarkViewed("a1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkUnread("a1"); err != nil {
		t.Fatal(err)
	}

	st, _ := db.GetStatus("a1")
	if st.IsViewed {
		t.Error("IsViewed = true after MarkUnread")
	}
	if st.ViewedAt != nil {
		t.Errorf("ViewedAt = %v, want nil", st.ViewedAt)
	}

	// No-op for articles without a status row.
	if err := db.MarkUnread("never-seen"); err != nil {
		t.Errorf("MarkUnread without row: %v", err)
	}
}

func TestGetStatusMissingRowIsZero(t *testing.T) {
	db := testDB(t)
	st, err := db.GetStatus("a1")
	if err != nil {
		t.Fatal(err)
	}
	if st.IsSaved || st.IsViewed || st.NotePath != "" || st.SavedAt != nil || st.ViewedAt != nil {
		t.Errorf("status = %+v, want zero value", st)
	}
}

func TestSetTagsNormalizesAndPrunes(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))
	mustUpsert(t, db, testCandidate("a2", "hep-ex"))

	if err := db.SetTags("a1", []string{"To-Read", "  lattice ", "to-read"}); err != nil {
		t.Fatal(err)
	}
	tags, err := db.GetTags("a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 || tags[0] != "lattice" || tags[1] != "to-read" {
		t.Errorf("tags = %v, want [lattice to-read]", tags)
	}

	if err := db.SetTags("a2", []string{"lattice"}); err != nil {
		t.Fatal(err)
	}

	// Replacing a1's tags orphans nothing yet: lattice still used by a2.
	if err := db.SetTags("a1", []string{"qcd"}); err != nil {
		t.Fatal(err)
	}
	all, _ := db.AllTags()
	names := make([]string, len(all))
	for i, tc := range all {
		names[i] = tc.Name
	}
	if len(all) != 2 {
		t.Fatalf("AllTags = %v, want [lattice qcd]", names)
	}

	// Clearing a2 orphans lattice, which must be pruned.
	if err := db.SetTags("a2", nil); err != nil {
		t.Fatal(err)
	}
	all, _ = db.AllTags()
	if len(all) != 1 || all[0].Name != "qcd" {
		t.Errorf("AllTags after prune = %v, want [qcd]", all)
	}
}

func TestGetByTag(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("a1", "hep-ex"))
	mustUpsert(t, db, testCandidate("a2", "hep-ex"))

	if err := db.SetTags("a1", []string{"to-read"}); err != nil {
		t.Fatal(err)
	}

	arts, err := db.GetByTag("TO-READ")
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 1 || arts[0].ID != "a1" {
		t.Errorf("GetByTag = %v, want [a1]", ids(arts))
	}
	if !arts[0].HasTags {
		t.Error("HasTags = false, want true")
	}
}

func TestNoteLinks(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testCandidate("hep-ph/0005001v1", "hep-ph"))

	if err := db.LinkNote("hep-ph/0005001v1", "hep-ph_0005001v1.md"); err != nil {
		t.Fatal(err)
	}

	st, _ := db.GetStatus("hep-ph/0005001v1")
	if st.NotePath != "hep-ph_0005001v1.md" {
		t.Errorf("NotePath = %q", st.NotePath)
	}

	links, err := db.AllNoteLinks()
	if err != nil {
		t.Fatal(err)
	}
	if links["hep-ph/0005001v1"] != "hep-ph_0005001v1.md" {
		t.Errorf("AllNoteLinks = %v", links)
	}

	if err := db.UnlinkNote("hep-ph/0005001v1"); err != nil {
		t.Fatal(err)
	}
	links, _ = db.AllNoteLinks()
	if len(links) != 0 {
		t.Errorf("links after unlink = %v", links)
	}
}
