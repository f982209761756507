package mailbox

// Cursor is an opaque continuation token for the list endpoint.
// The zero value is the start cursor.
type Cursor struct {
	token     string
	exhausted bool
}

// Start returns the cursor for the first page.
func Start() Cursor {
	return Cursor{}
}

// Exhausted returns the terminal cursor. No further list calls are allowed.
func Exhausted() Cursor {
	return Cursor{exhausted: true}
}

// NextCursor converts a provider continuation token into a cursor.
// An empty token means the stream is exhausted.
func NextCursor(token string) Cursor {
	if token == "" {
		return Exhausted()
	}
	return Cursor{token: token}
}

// Token returns the continuation token. It is empty for the start cursor.
func (c Cursor) Token() string {
	return c.token
}

// IsExhausted reports whether the cursor is terminal.
func (c Cursor) IsExhausted() bool {
	return c.exhausted
}

// String implements fmt.Stringer for logging.
func (c Cursor) String() string {
	switch {
	case c.exhausted:
		return "<exhausted>"
	case c.token == "":
		return "<start>"
	default:
		return c.token
	}
}
