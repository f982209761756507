// Package testutil provides a mock Gmail and People API server for tests.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/people/v1"
)

// MockMessage is one message held by the mock mailbox.
type MockMessage struct {
	ID           string
	ThreadID     string
	Snippet      string
	Subject      string
	From         string
	Labels       []string
	InternalDate time.Time
	Body         string
}

// MockContact is one connection returned by the mock People API.
type MockContact struct {
	ResourceName string
	DisplayName  string
	Emails       []string
}

// failure is a scripted error response. remaining < 0 means forever.
type failure struct {
	status    int
	reason    string
	remaining int
}

// MockGmail is a configurable mock of the Gmail messages API and the
// People API endpoints used by the contacts reader.
type MockGmail struct {
	server *httptest.Server

	mu       sync.Mutex
	messages []MockMessage
	groups   []*people.ContactGroup
	contacts []MockContact
	handlers map[string]http.HandlerFunc

	getFailures  map[string]*failure
	listFailures map[int]*failure

	// PageSize caps every list page; 0 means the client's maxResults.
	PageSize int

	// GetDelay is applied to every messages.get.
	GetDelay time.Duration

	// EmailAddress is returned by users.getProfile. Defaults to
	// DefaultEmailAddress.
	EmailAddress string

	listCalls    int
	profileCalls int
	getCalls     map[string]int
	inFlight     int
	maxInFlight  int
	lastQuery    string
	lastHeader   http.Header
}

// DefaultEmailAddress is the mock mailbox owner.
const DefaultEmailAddress = "owner@example.com"

// NewMockGmail creates and starts a new mock server.
func NewMockGmail() *MockGmail {
	mock := &MockGmail{
		handlers:     make(map[string]http.HandlerFunc),
		getFailures:  make(map[string]*failure),
		listFailures: make(map[int]*failure),
		getCalls:     make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL with a trailing slash, suitable for
// option.WithEndpoint.
func (m *MockGmail) URL() string {
	return m.server.URL + "/"
}

// Client returns an HTTP client for the mock server.
func (m *MockGmail) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockGmail) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for an exact path.
func (m *MockGmail) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// AddMessages appends messages to the mailbox in list order.
func (m *MockGmail) AddMessages(msgs ...MockMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

// GenerateMessages adds n messages with ids "<prefix>-<i>", newest first.
func (m *MockGmail) GenerateMessages(prefix string, n int) []string {
	ids := make([]string, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := make([]MockMessage, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i)
		msgs[i] = MockMessage{
			ID:           ids[i],
			ThreadID:     fmt.Sprintf("t-%s-%d", prefix, i),
			Snippet:      fmt.Sprintf("message %d", i),
			Subject:      fmt.Sprintf("Subject %d", i),
			From:         "sender@example.com",
			Labels:       []string{"INBOX"},
			InternalDate: base.Add(time.Duration(n-i) * time.Minute),
		}
	}
	m.AddMessages(msgs...)
	return ids
}

// FailGet makes messages.get for id return status. times < 0 fails forever.
func (m *MockGmail) FailGet(id string, status int, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getFailures[id] = &failure{status: status, reason: reasonFor(status), remaining: times}
}

// FailList makes the list call for page index (0-based) return status.
// times < 0 fails forever.
func (m *MockGmail) FailList(page int, status int, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFailures[page] = &failure{status: status, reason: reasonFor(status), remaining: times}
}

// SetContactGroups configures contactGroups.list.
func (m *MockGmail) SetContactGroups(groups ...*people.ContactGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = groups
}

// SetContacts configures people.connections.list.
func (m *MockGmail) SetContacts(contacts ...MockContact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = contacts
}

// ListCalls returns the number of messages.list requests.
func (m *MockGmail) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// ProfileCalls returns the number of users.getProfile requests.
func (m *MockGmail) ProfileCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileCalls
}

// GetCalls returns the number of messages.get requests for id.
func (m *MockGmail) GetCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls[id]
}

// TotalGetCalls returns the number of messages.get requests.
func (m *MockGmail) TotalGetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.getCalls {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of concurrent messages.get calls.
func (m *MockGmail) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// LastQuery returns the raw query string of the last request.
func (m *MockGmail) LastQuery() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// LastHeader returns the headers of the last request.
func (m *MockGmail) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func (m *MockGmail) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.lastQuery = r.URL.RawQuery
	m.lastHeader = r.Header.Clone()
	handler, exists := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/v1/contactGroups":
		m.serveGroups(w)
	case strings.HasPrefix(path, "/v1/people/") && strings.HasSuffix(path, "/connections"):
		m.serveConnections(w)
	case strings.HasPrefix(path, "/gmail/v1/users/"):
		// /gmail/v1/users/{user}/(profile|messages[/{id}])
		parts := strings.Split(strings.TrimPrefix(path, "/gmail/v1/users/"), "/")
		switch {
		case len(parts) == 2 && parts[1] == "profile":
			m.serveProfile(w)
		case len(parts) == 2 && parts[1] == "messages":
			m.serveList(w, r)
		case len(parts) == 3 && parts[1] == "messages":
			m.serveGet(w, parts[2])
		default:
			WriteError(w, http.StatusNotFound, "notFound", "unknown path")
		}
	default:
		WriteError(w, http.StatusNotFound, "notFound", "unknown path")
	}
}

func (m *MockGmail) serveList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset := 0
	if token := q.Get("pageToken"); token != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(token, "page-"))
		if err != nil || !strings.HasPrefix(token, "page-") {
			WriteError(w, http.StatusBadRequest, "invalidArgument", "Invalid pageToken")
			return
		}
		offset = n
	}

	size := 100
	if v := q.Get("maxResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}

	m.mu.Lock()
	m.listCalls++
	if m.PageSize > 0 && m.PageSize < size {
		size = m.PageSize
	}
	pageIndex := offset / size
	if f, ok := m.listFailures[pageIndex]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		m.mu.Unlock()
		WriteError(w, f.status, f.reason, "list failure")
		return
	}

	end := offset + size
	if end > len(m.messages) {
		end = len(m.messages)
	}
	resp := &gmail.ListMessagesResponse{ResultSizeEstimate: int64(len(m.messages))}
	for _, msg := range m.messages[min(offset, end):end] {
		resp.Messages = append(resp.Messages, &gmail.Message{Id: msg.ID, ThreadId: msg.ThreadID})
	}
	if end < len(m.messages) {
		resp.NextPageToken = fmt.Sprintf("page-%d", end)
	}
	m.mu.Unlock()

	writeJSON(w, resp)
}

func (m *MockGmail) serveGet(w http.ResponseWriter, id string) {
	m.mu.Lock()
	m.getCalls[id]++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.GetDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	if f, ok := m.getFailures[id]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		m.mu.Unlock()
		WriteError(w, f.status, f.reason, "get failure")
		return
	}
	var found *MockMessage
	for i := range m.messages {
		if m.messages[i].ID == id {
			msg := m.messages[i]
			found = &msg
			break
		}
	}
	m.mu.Unlock()

	if found == nil {
		WriteError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
		return
	}
	writeJSON(w, found.toGmail())
}

func (m *MockGmail) serveProfile(w http.ResponseWriter) {
	m.mu.Lock()
	m.profileCalls++
	addr := m.EmailAddress
	total := len(m.messages)
	m.mu.Unlock()

	if addr == "" {
		addr = DefaultEmailAddress
	}
	writeJSON(w, &gmail.Profile{EmailAddress: addr, MessagesTotal: int64(total)})
}

func (m *MockGmail) serveGroups(w http.ResponseWriter) {
	m.mu.Lock()
	resp := &people.ListContactGroupsResponse{ContactGroups: m.groups, TotalItems: int64(len(m.groups))}
	m.mu.Unlock()
	writeJSON(w, resp)
}

func (m *MockGmail) serveConnections(w http.ResponseWriter) {
	m.mu.Lock()
	resp := &people.ListConnectionsResponse{TotalPeople: int64(len(m.contacts))}
	for _, c := range m.contacts {
		p := &people.Person{ResourceName: c.ResourceName}
		if c.DisplayName != "" {
			p.Names = []*people.Name{{DisplayName: c.DisplayName}}
		}
		for _, e := range c.Emails {
			p.EmailAddresses = append(p.EmailAddresses, &people.EmailAddress{Value: e})
		}
		resp.Connections = append(resp.Connections, p)
	}
	m.mu.Unlock()
	writeJSON(w, resp)
}

func (msg MockMessage) toGmail() *gmail.Message {
	headers := []*gmail.MessagePartHeader{}
	if msg.Subject != "" {
		headers = append(headers, &gmail.MessagePartHeader{Name: "Subject", Value: msg.Subject})
	}
	if msg.From != "" {
		headers = append(headers, &gmail.MessagePartHeader{Name: "From", Value: msg.From})
	}
	return &gmail.Message{
		Id:           msg.ID,
		ThreadId:     msg.ThreadID,
		LabelIds:     msg.Labels,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate.UnixMilli(),
		SizeEstimate: int64(len(msg.Body) + 512),
		HistoryId:    uint64(1000 + len(msg.ID)),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers:  headers,
			Body: &gmail.MessagePartBody{
				Size: int64(len(msg.Body)),
				Data: base64.URLEncoding.EncodeToString([]byte(msg.Body)),
			},
		},
	}
}

func reasonFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "notFound"
	case http.StatusTooManyRequests:
		return "rateLimitExceeded"
	case http.StatusBadRequest:
		return "invalidArgument"
	case http.StatusUnauthorized:
		return "authError"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "backendError"
	}
}

// WriteError writes a Google API style JSON error.
func WriteError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	body := map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"reason": reason, "message": message, "domain": "global"},
			},
		},
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
