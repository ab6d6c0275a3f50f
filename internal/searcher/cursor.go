package searcher

import (
	"time"
)

// CursorUnit is the step subtracted from a cursor to exclude the previous
// page's last item. It matches the millisecond resolution of created_at.
const CursorUnit = time.Millisecond

const cursorLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatCursor encodes a creation time as a page cursor
func FormatCursor(t time.Time) string {
	return t.UTC().Format(cursorLayout)
}

// ParseCursor decodes an RFC 3339 cursor, with or without fractional seconds.
// ok is false for an empty or malformed cursor.
func ParseCursor(cursor string) (t time.Time, ok bool) {
	if cursor == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// EffectiveUpperBound returns the inclusive created_at bound shared by both
// retrieval branches: the earlier of dateTo and cursor minus CursorUnit.
// A malformed cursor counts as absent. Nil means unbounded.
func EffectiveUpperBound(dateTo *time.Time, cursor string) *time.Time {
	var bound *time.Time
	if dateTo != nil {
		t := dateTo.UTC()
		bound = &t
	}

	if c, ok := ParseCursor(cursor); ok {
		candidate := c.Add(-CursorUnit)
		if bound == nil || candidate.Before(*bound) {
			bound = &candidate
		}
	}

	return bound
}
