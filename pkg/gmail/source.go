// Package gmail adapts the Gmail API to the mailbox fetcher interfaces.
//
// List maps to users.messages.list and Get to users.messages.get. Errors are
// translated into the mailbox error taxonomy so decorators and the engine
// can classify them without knowing about googleapi.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// Limits imposed by the Gmail API.
const (
	// MaxPageSize is the largest maxResults messages.list accepts.
	MaxPageSize = 500

	// DefaultPageSize is what messages.list returns when maxResults is unset.
	DefaultPageSize = 100
)

// Supported detail formats.
const (
	FormatFull     = "full"
	FormatMetadata = "metadata"
	FormatMinimal  = "minimal"
	FormatRaw      = "raw"
)

// Scopes needed by the Source.
var Scopes = []string{gmail.GmailReadonlyScope}

// Options configures a Source.
type Options struct {
	// User is the mailbox owner; "me" is the authenticated user.
	User string

	// Query is a Gmail search expression (the q parameter).
	Query string

	// PageSize is maxResults for every list call.
	PageSize int64

	// IncludeSpamTrash includes messages from SPAM and TRASH.
	IncludeSpamTrash bool

	// LabelIDs restricts the listing to messages with all of these labels.
	LabelIDs []string

	// Format is the messages.get format.
	Format string

	// Endpoint overrides the API base URL. Used by tests.
	Endpoint string
}

// DefaultOptions returns options for a full read of the user's mailbox.
func DefaultOptions() Options {
	return Options{
		User:     "me",
		PageSize: DefaultPageSize,
		Format:   FormatFull,
	}
}

// Source reads messages from one Gmail mailbox.
type Source struct {
	svc    *gmail.Service
	opts   Options
	logger zerolog.Logger
}

// New creates a Source over httpClient, which must carry credentials
// (see the auth package).
func New(ctx context.Context, httpClient *http.Client, opts Options) (*Source, error) {
	if opts.User == "" {
		opts.User = "me"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d exceeds maximum %d", opts.PageSize, MaxPageSize)
	}
	switch opts.Format {
	case "":
		opts.Format = FormatFull
	case FormatFull, FormatMetadata, FormatMinimal, FormatRaw:
	default:
		return nil, fmt.Errorf("unknown message format %q", opts.Format)
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return &Source{
		svc:    svc,
		opts:   opts,
		logger: logging.NewLogger("gmail").With().Str("user", opts.User).Logger(),
	}, nil
}

// Options returns the effective options.
func (s *Source) Options() Options {
	return s.opts
}

// List implements mailbox.SummaryFetcher.
func (s *Source) List(ctx context.Context, cursor mailbox.Cursor) (mailbox.Page, error) {
	call := s.svc.Users.Messages.List(s.opts.User).
		MaxResults(s.opts.PageSize).
		IncludeSpamTrash(s.opts.IncludeSpamTrash).
		Context(ctx)
	if token := cursor.Token(); token != "" {
		call = call.PageToken(token)
	}
	if s.opts.Query != "" {
		call = call.Q(s.opts.Query)
	}
	if len(s.opts.LabelIDs) > 0 {
		call = call.LabelIds(s.opts.LabelIDs...)
	}

	resp, err := call.Do()
	if err != nil {
		return mailbox.Page{}, mapError("list", "", err)
	}

	// A mailbox with no matches omits the messages array entirely.
	page := mailbox.Page{
		Summaries: make([]mailbox.Summary, 0, len(resp.Messages)),
		Next:      mailbox.NextCursor(resp.NextPageToken),
	}
	for _, m := range resp.Messages {
		if m == nil {
			continue
		}
		page.Summaries = append(page.Summaries, mailbox.Summary{
			ID:       mailbox.Identity(m.Id),
			ThreadID: m.ThreadId,
		})
	}

	s.logger.Debug().
		Str("cursor", cursor.String()).
		Int("summaries", len(page.Summaries)).
		Int64("estimate", resp.ResultSizeEstimate).
		Bool("last", page.Next.IsExhausted()).
		Msg("Listed message page")

	return page, nil
}

// Account returns the email address of the mailbox owner. It resolves the
// "me" alias to the authenticated user's address.
func (s *Source) Account(ctx context.Context) (string, error) {
	profile, err := s.svc.Users.GetProfile(s.opts.User).Context(ctx).Do()
	if err != nil {
		return "", mapError("profile", "", err)
	}
	if profile.EmailAddress == "" {
		return "", fmt.Errorf("profile for %q has no email address", s.opts.User)
	}
	return profile.EmailAddress, nil
}

// Get implements mailbox.DetailFetcher.
func (s *Source) Get(ctx context.Context, id mailbox.Identity) (mailbox.Detail, error) {
	msg, err := s.svc.Users.Messages.Get(s.opts.User, string(id)).
		Format(s.opts.Format).
		Context(ctx).
		Do()
	if err != nil {
		return mailbox.Detail{}, mapError("get", id, err)
	}
	return normalize(msg), nil
}

// normalize converts a Gmail message into a mailbox.Detail.
func normalize(m *gmail.Message) mailbox.Detail {
	d := mailbox.Detail{
		ID:           mailbox.Identity(m.Id),
		ThreadID:     m.ThreadId,
		LabelIDs:     m.LabelIds,
		Snippet:      m.Snippet,
		SizeEstimate: m.SizeEstimate,
		HistoryID:    m.HistoryId,
	}
	if m.InternalDate != 0 {
		d.InternalDate = time.UnixMilli(m.InternalDate).UTC()
	}
	if m.Raw != "" {
		d.MimeType = "message/rfc822"
		d.Body = decodeBody(m.Raw)
	}
	if p := m.Payload; p != nil {
		d.MimeType = p.MimeType
		for _, h := range p.Headers {
			if h == nil {
				continue
			}
			d.Headers = append(d.Headers, mailbox.Header{Name: h.Name, Value: h.Value})
		}
		if p.Body != nil && p.Body.Data != "" {
			d.Body = decodeBody(p.Body.Data)
		}
	}
	return d
}

// decodeBody decodes Gmail's base64url payloads, which may or may not be
// padded.
func decodeBody(data string) []byte {
	data = strings.TrimRight(data, "=")
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil
	}
	return b
}

// mapError converts a Gmail API error into the mailbox taxonomy.
func mapError(op string, id mailbox.Identity, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound && id != "" {
			return fmt.Errorf("message %s: %w", id, mailbox.ErrNotFound)
		}
		remote := &mailbox.RemoteError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
		if len(apiErr.Errors) > 0 {
			remote.Reason = apiErr.Errors[0].Reason
		}
		return remote
	}

	return &mailbox.TransportError{Op: op, Err: err}
}
