package gmail

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/mailbox-sync/internal/testutil"
	"github.com/Sternrassler/mailbox-sync/pkg/client"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

func newTestSource(t *testing.T, mock *testutil.MockGmail, mutate func(*Options)) *Source {
	t.Helper()
	opts := DefaultOptions()
	opts.Endpoint = mock.URL()
	if mutate != nil {
		mutate(&opts)
	}
	src, err := New(context.Background(), mock.Client(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return src
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"max page size", Options{PageSize: MaxPageSize}, false},
		{"page size too large", Options{PageSize: MaxPageSize + 1}, true},
		{"metadata format", Options{Format: FormatMetadata}, false},
		{"unknown format", Options{Format: "html"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(context.Background(), http.DefaultClient, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				got := src.Options()
				if got.User != "me" || got.PageSize <= 0 || got.Format == "" {
					t.Errorf("defaults not applied: %+v", got)
				}
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	ids := mock.GenerateMessages("m", 5)

	src := newTestSource(t, mock, func(o *Options) { o.PageSize = 2 })
	ctx := context.Background()

	var got []mailbox.Identity
	cursor := mailbox.Start()
	pages := 0
	for !cursor.IsExhausted() {
		page, err := src.List(ctx, cursor)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for _, s := range page.Summaries {
			got = append(got, s.ID)
			if s.ThreadID == "" {
				t.Errorf("summary %s has no thread id", s.ID)
			}
		}
		cursor = page.Next
		pages++
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	if len(got) != len(ids) {
		t.Fatalf("got %d summaries, want %d", len(got), len(ids))
	}
	for i := range ids {
		if string(got[i]) != ids[i] {
			t.Errorf("summary %d = %s, want %s", i, got[i], ids[i])
		}
	}
}

func TestList_EmptyMailbox(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()

	src := newTestSource(t, mock, nil)
	page, err := src.List(context.Background(), mailbox.Start())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Summaries) != 0 {
		t.Errorf("summaries = %d, want 0", len(page.Summaries))
	}
	if !page.Next.IsExhausted() {
		t.Error("empty mailbox should exhaust the cursor")
	}
}

func TestList_QueryParameters(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()

	src := newTestSource(t, mock, func(o *Options) {
		o.Query = "from:alice newer_than:7d"
		o.IncludeSpamTrash = true
		o.LabelIDs = []string{"INBOX"}
		o.PageSize = 50
	})

	if _, err := src.List(context.Background(), mailbox.NextCursor("page-10")); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	q, err := url.ParseQuery(mock.LastQuery())
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	checks := map[string]string{
		"q":                "from:alice newer_than:7d",
		"includeSpamTrash": "true",
		"labelIds":         "INBOX",
		"maxResults":       "50",
		"pageToken":        "page-10",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestGet_Detail(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	mock.AddMessages(testutil.MockMessage{
		ID:           "abc",
		ThreadID:     "t1",
		Snippet:      "See you at noon",
		Subject:      "Lunch",
		From:         "alice@example.com",
		Labels:       []string{"INBOX", "UNREAD"},
		InternalDate: when,
		Body:         "See you at noon.",
	})

	src := newTestSource(t, mock, nil)
	d, err := src.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if d.ID != "abc" || d.ThreadID != "t1" {
		t.Errorf("ids = %s/%s", d.ID, d.ThreadID)
	}
	if d.Snippet != "See you at noon" {
		t.Errorf("Snippet = %q", d.Snippet)
	}
	if !d.InternalDate.Equal(when) {
		t.Errorf("InternalDate = %v, want %v", d.InternalDate, when)
	}
	if d.Header("Subject") != "Lunch" || d.Header("From") != "alice@example.com" {
		t.Errorf("headers = %+v", d.Headers)
	}
	if len(d.LabelIDs) != 2 {
		t.Errorf("LabelIDs = %v", d.LabelIDs)
	}
	if string(d.Body) != "See you at noon." {
		t.Errorf("Body = %q", d.Body)
	}
	if d.MimeType != "text/plain" {
		t.Errorf("MimeType = %q", d.MimeType)
	}
	if q, _ := url.ParseQuery(mock.LastQuery()); q.Get("format") != FormatFull {
		t.Errorf("format = %q, want full", q.Get("format"))
	}
}

func TestGet_ErrorMapping(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.GenerateMessages("m", 4)
	mock.FailGet("m-1", http.StatusInternalServerError, -1)
	mock.FailGet("m-2", http.StatusTooManyRequests, -1)
	mock.FailGet("m-3", http.StatusForbidden, -1)

	src := newTestSource(t, mock, nil)
	ctx := context.Background()

	tests := []struct {
		id        mailbox.Identity
		wantClass client.ErrorClass
	}{
		{"missing", client.ErrorClassNotFound},
		{"m-1", client.ErrorClassServer},
		{"m-2", client.ErrorClassRateLimit},
		{"m-3", client.ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			_, err := src.Get(ctx, tt.id)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := client.Classify(err); got != tt.wantClass {
				t.Errorf("Classify(%v) = %q, want %q", err, got, tt.wantClass)
			}
		})
	}

	_, err := src.Get(ctx, "missing")
	if !mailbox.IsNotFound(err) {
		t.Errorf("missing message should be ErrNotFound, got %v", err)
	}
	_, err = src.Get(ctx, "m-3")
	var remote *mailbox.RemoteError
	if !errors.As(err, &remote) || remote.Reason != "forbidden" {
		t.Errorf("expected RemoteError with reason, got %v", err)
	}
}

func TestGet_TransportError(t *testing.T) {
	mock := testutil.NewMockGmail()
	src := newTestSource(t, mock, nil)
	mock.Close()

	_, err := src.Get(context.Background(), "x")
	var transport *mailbox.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transport.Op != "get" {
		t.Errorf("Op = %q, want get", transport.Op)
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.GenerateMessages("m", 1)

	src := newTestSource(t, mock, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Get(ctx, "m-0")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aGVsbG8", "hello"},
		{"aGVsbG8=", "hello"},
		{"PDw_Pz4-", "<<??>>"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := string(decodeBody(tt.in)); got != tt.want {
			t.Errorf("decodeBody(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccount(t *testing.T) {
	tests := []struct {
		name      string
		address   string
		status    int
		want      string
		wantClass client.ErrorClass
	}{
		{name: "default owner", want: testutil.DefaultEmailAddress},
		{name: "configured owner", address: "alice@example.com", want: "alice@example.com"},
		{name: "unauthorized", status: http.StatusUnauthorized, wantClass: client.ErrorClassClient},
		{name: "server error", status: http.StatusInternalServerError, wantClass: client.ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGmail()
			defer mock.Close()
			mock.EmailAddress = tt.address
			if tt.status != 0 {
				mock.SetHandler("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
					testutil.WriteError(w, tt.status, "backendError", "profile failure")
				})
			}

			src := newTestSource(t, mock, nil)
			got, err := src.Account(context.Background())
			if tt.status != 0 {
				if err == nil {
					t.Fatalf("Account() = %q, want error", got)
				}
				if class := client.Classify(err); class != tt.wantClass {
					t.Errorf("Classify(%v) = %q, want %q", err, class, tt.wantClass)
				}
				return
			}
			if err != nil {
				t.Fatalf("Account() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Account() = %q, want %q", got, tt.want)
			}
		})
	}
}
