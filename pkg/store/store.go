// Package store holds the identity-keyed record set produced by a sync run.
package store

import (
	"sort"

	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// RecordStore maps each identity to its best-known record.
//
// Writes are last-write-wins. The store has a single writer (the engine
// goroutine) and is not safe for concurrent mutation.
type RecordStore struct {
	records map[mailbox.Identity]mailbox.Record
}

// New creates an empty store.
func New() *RecordStore {
	return &RecordStore{records: make(map[mailbox.Identity]mailbox.Record)}
}

// Upsert stores rec under id, replacing any existing entry.
// It reports whether an entry for id already existed.
func (s *RecordStore) Upsert(id mailbox.Identity, rec mailbox.Record) bool {
	_, existed := s.records[id]
	rec.ID = id
	s.records[id] = rec
	return existed
}

// UpsertSummary seeds the store with a summary.
func (s *RecordStore) UpsertSummary(sum mailbox.Summary) bool {
	return s.Upsert(sum.ID, mailbox.FromSummary(sum))
}

// UpsertDetail replaces whatever is stored for the detail's identity.
func (s *RecordStore) UpsertDetail(d mailbox.Detail) bool {
	return s.Upsert(d.ID, mailbox.FromDetail(d))
}

// Get returns the record for id.
func (s *RecordStore) Get(id mailbox.Identity) (mailbox.Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of identities in the store.
func (s *RecordStore) Len() int {
	return len(s.records)
}

// Snapshot returns all records ordered by identity.
func (s *RecordStore) Snapshot() []mailbox.Record {
	out := make([]mailbox.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedBy returns all records ordered by less. Ties keep identity order.
func (s *RecordStore) SortedBy(less func(a, b mailbox.Record) bool) []mailbox.Record {
	out := s.Snapshot()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Count returns the number of records held at fidelity f.
func (s *RecordStore) Count(f mailbox.Fidelity) int {
	n := 0
	for _, rec := range s.records {
		if rec.Fidelity == f {
			n++
		}
	}
	return n
}

// NewestFirst orders detail records by InternalDate descending; summary
// records sort after every detail record.
func NewestFirst(a, b mailbox.Record) bool {
	if a.Fidelity != b.Fidelity {
		return a.Fidelity == mailbox.FidelityDetail
	}
	if a.Fidelity == mailbox.FidelitySummary {
		return false
	}
	return a.Detail.InternalDate.After(b.Detail.InternalDate)
}
