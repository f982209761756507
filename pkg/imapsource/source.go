// Package imapsource reads a mailbox over IMAP and exposes it through the
// mailbox fetcher interfaces.
//
// The UID list is searched once per run, newest first, and paged by offset.
// Details for a whole batch are fetched with a single UID FETCH, so Source
// implements mailbox.BatchDetailFetcher.
package imapsource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// DefaultPageSize is the number of UIDs per page.
const DefaultPageSize = 100

const snippetLength = 200

// Options configures a Source.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLS selects implicit TLS. When false the connection is upgraded
	// with STARTTLS unless Insecure is set.
	TLS bool

	// Insecure disables TLS entirely. Only for local test servers.
	Insecure bool

	// Mailbox to read. Defaults to INBOX.
	Mailbox string

	// PageSize is the number of summaries per page.
	PageSize int

	// Since restricts the search to messages received on or after it.
	Since time.Time
}

// Source is a mailbox.SummaryFetcher and mailbox.BatchDetailFetcher over
// one IMAP mailbox.
type Source struct {
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	client      *imapclient.Client
	uidValidity uint32
	uids        []imap.UID
	searched    bool
}

// Dial connects, logs in and selects the configured mailbox.
func Dial(ctx context.Context, opts Options) (*Source, error) {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Port == 0 {
		opts.Port = 993
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	var client *imapclient.Client
	var err error
	switch {
	case opts.Insecure:
		client, err = imapclient.DialInsecure(addr, nil)
	case opts.TLS:
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: opts.Host},
		})
	default:
		client, err = imapclient.DialStartTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: opts.Host},
		})
	}
	if err != nil {
		return nil, &mailbox.TransportError{Op: "dial", Err: fmt.Errorf("imap connect %s: %w", addr, err)}
	}

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &mailbox.TransportError{Op: "login", Err: fmt.Errorf("imap login %s: %w", opts.Username, err)}
	}

	selected, err := client.Select(opts.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, mapError("select", err)
	}

	s := &Source{
		opts:        opts,
		client:      client,
		uidValidity: selected.UIDValidity,
		logger: logging.NewLogger("imap").With().
			Str("mailbox", opts.Mailbox).
			Logger(),
	}
	s.logger.Debug().
		Uint32("uid_validity", selected.UIDValidity).
		Uint32("messages", selected.NumMessages).
		Msg("Selected mailbox")
	return s, nil
}

// Close logs out and closes the connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug().Err(err).Msg("Logout failed")
	}
	return s.client.Close()
}

// UIDValidity returns the UIDVALIDITY of the selected mailbox.
func (s *Source) UIDValidity() uint32 {
	return s.uidValidity
}

// List implements mailbox.SummaryFetcher. The start cursor runs a fresh
// UID SEARCH; later cursors are offsets into that result.
func (s *Source) List(ctx context.Context, cursor mailbox.Cursor) (mailbox.Page, error) {
	offset := 0
	if token := cursor.Token(); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return mailbox.Page{}, fmt.Errorf("invalid imap page token %q", token)
		}
		offset = n
	}

	var uids []imap.UID
	err := s.run(ctx, func() error {
		if offset == 0 || !s.searched {
			if err := s.search(); err != nil {
				return err
			}
		}
		uids = s.uids
		return nil
	})
	if err != nil {
		return mailbox.Page{}, err
	}

	if offset > len(uids) {
		offset = len(uids)
	}
	end := offset + s.opts.PageSize
	if end > len(uids) {
		end = len(uids)
	}

	page := mailbox.Page{Summaries: make([]mailbox.Summary, 0, end-offset)}
	for _, uid := range uids[offset:end] {
		page.Summaries = append(page.Summaries, mailbox.Summary{
			ID: Identity(s.opts.Mailbox, s.uidValidity, uid),
		})
	}
	if end < len(uids) {
		page.Next = mailbox.NextCursor(strconv.Itoa(end))
	} else {
		page.Next = mailbox.Exhausted()
	}
	return page, nil
}

// search must be called with s.mu held.
func (s *Source) search() error {
	criteria := &imap.SearchCriteria{}
	if !s.opts.Since.IsZero() {
		criteria.Since = s.opts.Since
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return mapError("search", err)
	}

	uids := data.AllUIDs()
	// Newest first, matching the Gmail listing order.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	s.uids = uids
	s.searched = true

	s.logger.Debug().Int("uids", len(uids)).Msg("Searched mailbox")
	return nil
}

// Get implements mailbox.DetailFetcher.
func (s *Source) Get(ctx context.Context, id mailbox.Identity) (mailbox.Detail, error) {
	details, errs, err := s.GetBatch(ctx, []mailbox.Identity{id})
	if err != nil {
		return mailbox.Detail{}, err
	}
	if err := errs[id]; err != nil {
		return mailbox.Detail{}, err
	}
	return details[id], nil
}

// GetBatch implements mailbox.BatchDetailFetcher with one UID FETCH.
// Identities from another mailbox or UIDVALIDITY epoch, and UIDs the server
// no longer has, are reported as mailbox.ErrNotFound.
func (s *Source) GetBatch(ctx context.Context, ids []mailbox.Identity) (map[mailbox.Identity]mailbox.Detail, map[mailbox.Identity]error, error) {
	details := make(map[mailbox.Identity]mailbox.Detail, len(ids))
	errs := make(map[mailbox.Identity]error)

	byUID := make(map[imap.UID]mailbox.Identity, len(ids))
	uids := make([]imap.UID, 0, len(ids))
	for _, id := range ids {
		name, validity, uid, err := ParseIdentity(id)
		if err != nil {
			errs[id] = err
			continue
		}
		if name != s.opts.Mailbox || validity != s.uidValidity {
			errs[id] = fmt.Errorf("%s: %w", id, mailbox.ErrNotFound)
			continue
		}
		byUID[uid] = id
		uids = append(uids, uid)
	}

	if len(uids) == 0 {
		return details, errs, nil
	}

	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:          true,
		Flags:        true,
		Envelope:     true,
		InternalDate: true,
		RFC822Size:   true,
		BodySection:  []*imap.FetchItemBodySection{section},
	}

	var bufs []*imapclient.FetchMessageBuffer
	err := s.run(ctx, func() error {
		var err error
		bufs, err = s.client.Fetch(imap.UIDSetNum(uids...), opts).Collect()
		if err != nil {
			return mapError("fetch", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, buf := range bufs {
		id, ok := byUID[buf.UID]
		if !ok {
			continue
		}
		details[id] = toDetail(id, buf, buf.FindBodySection(section))
	}
	for uid, id := range byUID {
		if _, ok := details[id]; !ok {
			errs[id] = fmt.Errorf("uid %d: %w", uid, mailbox.ErrNotFound)
		}
	}
	return details, errs, nil
}

// run executes fn under the connection lock, returning early if ctx is
// done. The command itself is not interrupted; its result is discarded.
func (s *Source) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		done <- fn()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func toDetail(id mailbox.Identity, buf *imapclient.FetchMessageBuffer, raw []byte) mailbox.Detail {
	d := mailbox.Detail{
		ID:           id,
		InternalDate: buf.InternalDate.UTC(),
		SizeEstimate: buf.RFC822Size,
		MimeType:     "message/rfc822",
		Body:         raw,
		Snippet:      snippet(raw),
	}
	for _, f := range buf.Flags {
		d.LabelIDs = append(d.LabelIDs, string(f))
	}
	if env := buf.Envelope; env != nil {
		d.ThreadID = env.MessageID
		if len(env.InReplyTo) > 0 {
			d.ThreadID = env.InReplyTo[0]
		}
		add := func(name, value string) {
			if value != "" {
				d.Headers = append(d.Headers, mailbox.Header{Name: name, Value: value})
			}
		}
		add("Subject", env.Subject)
		add("From", addressList(env.From))
		add("To", addressList(env.To))
		add("Message-ID", env.MessageID)
		if !env.Date.IsZero() {
			add("Date", env.Date.Format(time.RFC1123Z))
		}
	}
	return d
}

func addressList(addrs []imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Addr()))
			continue
		}
		parts = append(parts, a.Addr())
	}
	return strings.Join(parts, ", ")
}

// snippet returns the first characters of the message text with
// whitespace collapsed. MIME structure is not decoded.
func snippet(raw []byte) string {
	text := string(raw)
	if i := strings.Index(text, "\r\n\r\n"); i >= 0 {
		text = text[i+4:]
	} else if i := strings.Index(text, "\n\n"); i >= 0 {
		text = text[i+2:]
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	r := []rune(text)
	return string(r[:snippetLength])
}

// statusForCode maps IMAP response codes onto HTTP-like statuses so the
// retry classification applies to both providers.
var statusForCode = map[imap.ResponseCode]int{
	imap.ResponseCodeNonExistent:          404,
	imap.ResponseCodeAuthenticationFailed: 401,
	imap.ResponseCodeLimit:                429,
	imap.ResponseCodeUnavailable:          503,
	imap.ResponseCodeServerBug:            500,
}

func mapError(op string, err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		status, ok := statusForCode[imapErr.Code]
		if !ok {
			status = 400
		}
		return &mailbox.RemoteError{
			StatusCode: status,
			Reason:     string(imapErr.Code),
			Message:    imapErr.Text,
		}
	}
	return &mailbox.TransportError{Op: op, Err: err}
}
