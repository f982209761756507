package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

func TestRecordStore_UpsertAndGet(t *testing.T) {
	s := New()

	if existed := s.UpsertSummary(mailbox.Summary{ID: "a", ThreadID: "t"}); existed {
		t.Error("first upsert should not report an existing entry")
	}

	rec, ok := s.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	if rec.Fidelity != mailbox.FidelitySummary {
		t.Errorf("Fidelity = %v, want summary", rec.Fidelity)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) should report absent")
	}
}

func TestRecordStore_DetailPrecedence(t *testing.T) {
	s := New()
	s.UpsertSummary(mailbox.Summary{ID: "k"})
	if existed := s.UpsertDetail(mailbox.Detail{ID: "k", Snippet: "full"}); !existed {
		t.Error("detail upsert should replace the summary entry")
	}

	rec, _ := s.Get("k")
	if rec.Fidelity != mailbox.FidelityDetail || rec.Detail.Snippet != "full" {
		t.Errorf("record = %+v, want detail with snippet", rec)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestRecordStore_UpsertIdempotent(t *testing.T) {
	s := New()
	d := mailbox.Detail{ID: "k", Snippet: "x", LabelIDs: []string{"INBOX"}}

	s.UpsertDetail(d)
	first := s.Snapshot()
	s.UpsertDetail(d)
	second := s.Snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("store changed after re-applying the same detail:\n%+v\n%+v", first, second)
	}
}

func TestRecordStore_LastWriteWins(t *testing.T) {
	s := New()
	s.UpsertDetail(mailbox.Detail{ID: "k", Snippet: "old"})
	s.UpsertDetail(mailbox.Detail{ID: "k", Snippet: "new"})

	rec, _ := s.Get("k")
	if rec.Detail.Snippet != "new" {
		t.Errorf("Snippet = %q, want new", rec.Detail.Snippet)
	}
}

func TestRecordStore_UpsertOverridesRecordID(t *testing.T) {
	s := New()
	s.Upsert("k", mailbox.Record{ID: "other", Fidelity: mailbox.FidelitySummary})

	rec, ok := s.Get("k")
	if !ok || rec.ID != "k" {
		t.Errorf("record = %+v, want ID k", rec)
	}
}

func TestRecordStore_SnapshotOrder(t *testing.T) {
	s := New()
	for _, id := range []mailbox.Identity{"c", "a", "b"} {
		s.UpsertSummary(mailbox.Summary{ID: id})
	}

	var got []mailbox.Identity
	for _, rec := range s.Snapshot() {
		got = append(got, rec.ID)
	}
	want := []mailbox.Identity{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot ids = %v, want %v", got, want)
	}
}

func TestRecordStore_SortedByNewestFirst(t *testing.T) {
	now := time.Now()
	s := New()
	s.UpsertDetail(mailbox.Detail{ID: "old", InternalDate: now.Add(-time.Hour)})
	s.UpsertDetail(mailbox.Detail{ID: "new", InternalDate: now})
	s.UpsertSummary(mailbox.Summary{ID: "a-summary"})

	var got []mailbox.Identity
	for _, rec := range s.SortedBy(NewestFirst) {
		got = append(got, rec.ID)
	}
	want := []mailbox.Identity{"new", "old", "a-summary"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedBy ids = %v, want %v", got, want)
	}
}

func TestRecordStore_Count(t *testing.T) {
	s := New()
	s.UpsertSummary(mailbox.Summary{ID: "a"})
	s.UpsertDetail(mailbox.Detail{ID: "b"})
	s.UpsertDetail(mailbox.Detail{ID: "c"})

	if got := s.Count(mailbox.FidelityDetail); got != 2 {
		t.Errorf("Count(detail) = %d, want 2", got)
	}
	if got := s.Count(mailbox.FidelitySummary); got != 1 {
		t.Errorf("Count(summary) = %d, want 1", got)
	}
}
