package cache

import (
	"strings"

	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// KeyPrefix is the namespace of every cache key.
const KeyPrefix = "mailsync"

// Key identifies a cached message detail.
type Key struct {
	// User is the mailbox owner's address. Callers resolve the "me" alias
	// first so that entries of different accounts never collide.
	User string

	// Format is the detail format the entry was fetched with (e.g. "full").
	Format string

	// ID is the message identity.
	ID mailbox.Identity
}

// String generates a deterministic cache key string.
// Format: mailsync:user:format:id
//
// Example:
//
//	mailsync:alice@example.com:full:18c2f0a1b2c3d4e5
func (k Key) String() string {
	user := k.User
	if user == "" {
		user = "me"
	}
	format := k.Format
	if format == "" {
		format = "full"
	}
	return strings.Join([]string{KeyPrefix, user, format, string(k.ID)}, ":")
}
