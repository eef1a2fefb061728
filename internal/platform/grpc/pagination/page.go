// Package pagination normalizes page sizes and encodes the opaque cursors
// handed back to API clients.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// Policy bounds the page size a listing accepts.
type Policy struct {
	Default int
	Max     int
}

// History pages through a table's chat log.
var History = Policy{Default: 50, Max: 200}

// Size resolves a requested page size against the policy. Zero or negative
// requests take the default; the result is never below one.
func (p Policy) Size(requested int32) int {
	size := int(requested)
	if size <= 0 {
		size = p.Default
	}
	if p.Max > 0 {
		size = min(size, p.Max)
	}
	return max(size, 1)
}

const cursorPrefix = "after:"

// ErrInvalidCursor reports a token that EncodeCursor did not produce.
var ErrInvalidCursor = errors.New("invalid page cursor")

// EncodeCursor wraps the last sequence id of a page into a page token.
func EncodeCursor(after int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(after, 10)))
}

// DecodeCursor returns the sequence id a page token resumes after.
func DecodeCursor(token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return 0, ErrInvalidCursor
	}
	digits, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	after, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || after < 0 {
		return 0, ErrInvalidCursor
	}
	return after, nil
}
