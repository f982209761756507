package imapsource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// Identity builds the identity of a message. UIDs are only unique within a
// mailbox and UIDVALIDITY epoch, so both are part of the identity.
func Identity(mailboxName string, uidValidity uint32, uid imap.UID) mailbox.Identity {
	return mailbox.Identity(fmt.Sprintf("%s:%d:%d", mailboxName, uidValidity, uid))
}

// ParseIdentity splits an identity built by Identity. Mailbox names may
// contain colons, so it parses from the right.
func ParseIdentity(id mailbox.Identity) (mailboxName string, uidValidity uint32, uid imap.UID, err error) {
	s := string(id)

	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("malformed imap identity %q", s)
	}
	rawUID := s[i+1:]
	s = s[:i]

	j := strings.LastIndexByte(s, ':')
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("malformed imap identity %q", id)
	}
	rawValidity := s[j+1:]
	mailboxName = s[:j]

	u, err := strconv.ParseUint(rawUID, 10, 32)
	if err != nil || u == 0 {
		return "", 0, 0, fmt.Errorf("malformed uid in identity %q", id)
	}
	v, err := strconv.ParseUint(rawValidity, 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed uidvalidity in identity %q", id)
	}
	return mailboxName, uint32(v), imap.UID(u), nil
}
