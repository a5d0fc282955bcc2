package inlinesearch

import (
	"fmt"
	"strconv"
	"strings"

	"weatherstuff/pkg/weatherstuff"
)

const cursorSeparator = "-"

// Cursor is the decoded paging token. Page is echoed for diagnostics only.
type Cursor struct {
	SessionID string
	Page      int
}

// String encodes the cursor as "<session>-<page>".
func (c Cursor) String() string {
	return c.SessionID + cursorSeparator + strconv.Itoa(c.Page)
}

// Next returns the cursor for the following page of the same session.
func (c Cursor) Next() Cursor {
	return Cursor{SessionID: c.SessionID, Page: c.Page + 1}
}

// ParseCursor decodes a paging token.
//
// Session ids may be negative integers, so the token is split on its last
// separator.
func ParseCursor(raw string) (Cursor, error) {
	index := strings.LastIndex(raw, cursorSeparator)
	if index < 0 {
		return Cursor{}, fmt.Errorf("%w: %q has no separator", weatherstuff.ErrInvalidCursor, raw)
	}

	sessionID := raw[:index]
	if !validSessionID(sessionID) {
		return Cursor{}, fmt.Errorf("%w: %q has malformed session id", weatherstuff.ErrInvalidCursor, raw)
	}
	page, err := strconv.Atoi(raw[index+1:])
	if err != nil || page < 0 {
		return Cursor{}, fmt.Errorf("%w: %q has malformed page counter", weatherstuff.ErrInvalidCursor, raw)
	}

	return Cursor{SessionID: sessionID, Page: page}, nil
}

// validSessionID accepts an optional leading minus followed by ASCII letters,
// digits or underscores.
func validSessionID(id string) bool {
	id = strings.TrimPrefix(id, cursorSeparator)
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '_':
		default:
			return false
		}
	}

	return true
}
