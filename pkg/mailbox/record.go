package mailbox

import "time"

// Identity uniquely names a message within the remote store.
type Identity string

// Fidelity tells which representation a Record holds.
type Fidelity int

const (
	// FidelitySummary means only the list-view fields are known.
	FidelitySummary Fidelity = iota

	// FidelityDetail means the message is fully hydrated.
	FidelityDetail
)

// String implements fmt.Stringer.
func (f Fidelity) String() string {
	switch f {
	case FidelitySummary:
		return "summary"
	case FidelityDetail:
		return "detail"
	default:
		return "unknown"
	}
}

// Summary is the list-view representation of a message.
type Summary struct {
	ID       Identity `json:"id"`
	ThreadID string   `json:"thread_id,omitempty"`
}

// Header is a raw header name/value pair as returned by the provider.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Detail is the fully hydrated representation of a message.
type Detail struct {
	ID           Identity  `json:"id"`
	ThreadID     string    `json:"thread_id,omitempty"`
	LabelIDs     []string  `json:"label_ids,omitempty"`
	Snippet      string    `json:"snippet,omitempty"`
	Headers      []Header  `json:"headers,omitempty"`
	InternalDate time.Time `json:"internal_date"`
	SizeEstimate int64     `json:"size_estimate,omitempty"`
	HistoryID    uint64    `json:"history_id,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	Body         []byte    `json:"body,omitempty"`
}

// Header returns the first header value with the given name.
// Names are compared exactly as the provider sent them.
func (d Detail) Header(name string) string {
	for _, h := range d.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// Record is the best-known representation of one message.
// Exactly one of Summary or Detail is meaningful, as told by Fidelity.
type Record struct {
	ID       Identity
	Fidelity Fidelity
	Summary  Summary
	Detail   Detail
}

// FromSummary builds a summary-fidelity record.
func FromSummary(s Summary) Record {
	return Record{ID: s.ID, Fidelity: FidelitySummary, Summary: s}
}

// FromDetail builds a detail-fidelity record.
func FromDetail(d Detail) Record {
	return Record{ID: d.ID, Fidelity: FidelityDetail, Detail: d}
}

// ThreadID returns the thread identifier from whichever representation is held.
func (r Record) ThreadID() string {
	if r.Fidelity == FidelityDetail {
		return r.Detail.ThreadID
	}
	return r.Summary.ThreadID
}
