package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sanitize converts one raw record into CSV-safe text, field for field.
// It never fails: absent values become empty strings and problem bytes
// are dropped or substituted, so a run always completes.
//
// Sanitize is idempotent: feeding its output back in as text values is a
// no-op.
func Sanitize(rec RawRecord) SanitizedRow {
	row := make(SanitizedRow, len(rec))
	for name, v := range rec {
		row[name] = SanitizeValue(v)
	}
	return row
}

// SanitizeValue renders a single typed field value as a CSV cell.
//
//   - nil            -> ""
//   - int64, float64 -> decimal text, floats without trailing zeros
//   - time.Time      -> YYYY-MM-DD
//   - bool           -> "True" / "False"
//   - string         -> whitespace-normalized, control-character-free
func SanitizeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return sanitizeText(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return sanitizeText(fmt.Sprint(x))
	}
}

// sanitizeText normalizes a text cell: CR, LF and TAB each become one
// space, the remaining ASCII control characters (including a stray DOS
// EOF marker 0x1A) are removed, space runs collapse to one space, and
// the result is trimmed.
func sanitizeText(s string) string {
	if isCleanText(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true // swallow leading spaces
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t' || r == ' ':
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
		case r < 0x20:
			// dropped, 0x00-0x1F covers the 0x1A EOF marker
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSuffix(b.String(), " ")
}

// isCleanText reports whether s needs no normalization. Most cells are
// already clean, so this avoids rebuilding every string.
func isCleanText(s string) bool {
	if s == "" {
		return true
	}
	if s[0] == ' ' || s[len(s)-1] == ' ' {
		return false
	}
	prevSpace := false
	for _, r := range s {
		if r < 0x20 {
			return false
		}
		if r == ' ' {
			if prevSpace {
				return false
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
	}
	return true
}
