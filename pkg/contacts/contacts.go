// Package contacts reads contact groups and connections from the People API.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// Fields requested for every connection.
const personFields = "names,emailAddresses"

// Scopes needed by the Reader.
var Scopes = []string{"profile", people.ContactsReadonlyScope}

// Group is a contact group such as "myContacts" or a user label.
type Group struct {
	ResourceName  string
	Name          string
	FormattedName string
	MemberCount   int64
}

// Contact is one connection of the authenticated user.
type Contact struct {
	ResourceName string
	DisplayName  string
	Emails       []string
}

// Options configures a Reader.
type Options struct {
	// Endpoint overrides the API base URL. Used by tests.
	Endpoint string
}

// Reader lists the authenticated user's contacts.
type Reader struct {
	svc    *people.Service
	logger zerolog.Logger
}

// New creates a Reader over httpClient, which must carry credentials.
func New(ctx context.Context, httpClient *http.Client, opts Options) (*Reader, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := people.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create people service: %w", err)
	}

	return &Reader{
		svc:    svc,
		logger: logging.NewLogger("contacts"),
	}, nil
}

// ListGroups returns the first page of contact groups.
func (r *Reader) ListGroups(ctx context.Context) ([]Group, error) {
	resp, err := r.svc.ContactGroups.List().Context(ctx).Do()
	if err != nil {
		return nil, mapError("list_groups", err)
	}

	groups := make([]Group, 0, len(resp.ContactGroups))
	for _, g := range resp.ContactGroups {
		if g == nil {
			continue
		}
		groups = append(groups, Group{
			ResourceName:  g.ResourceName,
			Name:          g.Name,
			FormattedName: g.FormattedName,
			MemberCount:   g.MemberCount,
		})
	}

	r.logger.Debug().Int("groups", len(groups)).Msg("Listed contact groups")
	return groups, nil
}

// ListConnections returns the first page of the user's connections, most
// recently modified first.
func (r *Reader) ListConnections(ctx context.Context) ([]Contact, error) {
	resp, err := r.svc.People.Connections.List("people/me").
		PersonFields(personFields).
		SortOrder("LAST_MODIFIED_DESCENDING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("list_connections", err)
	}

	contacts := make([]Contact, 0, len(resp.Connections))
	for _, p := range resp.Connections {
		if p == nil {
			continue
		}
		c := Contact{ResourceName: p.ResourceName}
		if len(p.Names) > 0 && p.Names[0] != nil {
			c.DisplayName = p.Names[0].DisplayName
		}
		for _, e := range p.EmailAddresses {
			if e != nil && e.Value != "" {
				c.Emails = append(c.Emails, e.Value)
			}
		}
		contacts = append(contacts, c)
	}

	r.logger.Debug().
		Int("contacts", len(contacts)).
		Int64("total", resp.TotalPeople).
		Msg("Listed connections")
	return contacts, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		remote := &mailbox.RemoteError{StatusCode: apiErr.Code, Message: apiErr.Message}
		if len(apiErr.Errors) > 0 {
			remote.Reason = apiErr.Errors[0].Reason
		}
		return remote
	}

	return &mailbox.TransportError{Op: op, Err: err}
}
