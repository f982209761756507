package mailbox

import "context"

// Page is one page of summaries plus the cursor of the following page.
type Page struct {
	Summaries []Summary
	Next      Cursor
}

// SummaryFetcher retrieves one page of summaries.
type SummaryFetcher interface {
	// List returns the page addressed by cursor. It must not be called
	// with an exhausted cursor.
	List(ctx context.Context, cursor Cursor) (Page, error)
}

// DetailFetcher retrieves the fully hydrated message for one identity.
type DetailFetcher interface {
	Get(ctx context.Context, id Identity) (Detail, error)
}

// BatchDetailFetcher hydrates several identities in a single round trip.
//
// GetBatch returns per-identity details and errors. An identity absent from
// both maps is treated as not found. A non-nil error fails every identity of
// the batch.
type BatchDetailFetcher interface {
	DetailFetcher
	GetBatch(ctx context.Context, ids []Identity) (map[Identity]Detail, map[Identity]error, error)
}
