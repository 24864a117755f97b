// Package charset provides the byte-to-text codecs used to decode legacy
// DBF string fields.
//
// Legacy DBF files predate Unicode; their text fields are stored in a
// region-specific codepage (cp1252, cp850, ...). This package wraps the
// golang.org/x/text charmaps behind a small Codec type that supports two
// decoding modes:
//
//   - strict: the first undecodable byte fails with its offset, used when
//     probing candidate encodings or when the caller picked one explicitly
//   - lossy: undecodable bytes become U+FFFD and are counted, used when no
//     candidate validated and the run must still complete
package charset

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Codec is a named single-byte codepage, or UTF-8 when cm is nil.
type Codec struct {
	name string
	cm   *charmap.Charmap
}

// Name returns the canonical codec name, e.g. "cp1252".
func (c *Codec) Name() string { return c.name }

// DecodeError reports the first byte a codec could not decode.
type DecodeError struct {
	Codec  string
	Offset int
	Byte   byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("charset: %s cannot decode byte 0x%02X at offset %d", e.Codec, e.Byte, e.Offset)
}

// Decode converts raw field bytes to UTF-8 text. It fails on the first
// byte the codec does not define; a *DecodeError carries the offset.
func (c *Codec) Decode(b []byte) (string, error) {
	if c.cm == nil {
		return decodeUTF8Strict(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for i, by := range b {
		r := c.cm.DecodeByte(by)
		if r == utf8.RuneError {
			return "", &DecodeError{Codec: c.name, Offset: i, Byte: by}
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// DecodeLossy converts raw field bytes to UTF-8 text, substituting U+FFFD
// for undecodable bytes. It reports the number of substitutions made.
func (c *Codec) DecodeLossy(b []byte) (string, int) {
	if c.cm == nil {
		return decodeUTF8Lossy(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	subs := 0
	for _, by := range b {
		r := c.cm.DecodeByte(by)
		if r == utf8.RuneError {
			subs++
		}
		sb.WriteRune(r)
	}
	return sb.String(), subs
}

// Writer wraps w so that UTF-8 text written to it is re-encoded in this
// codec. Runes the codec cannot represent are replaced, not dropped.
// For UTF-8 the writer is returned unchanged.
func (c *Codec) Writer(w io.Writer) io.Writer {
	if c.cm == nil {
		return w
	}
	var enc encoding.Encoding = c.cm
	return transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder()))
}

func decodeUTF8Strict(b []byte) (string, error) {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return "", &DecodeError{Codec: "utf-8", Offset: i, Byte: b[i]}
		}
		i += size
	}
	return string(b), nil
}

func decodeUTF8Lossy(b []byte) (string, int) {
	if utf8.Valid(b) {
		return string(b), 0
	}
	var sb strings.Builder
	sb.Grow(len(b))
	subs := 0
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			subs++
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String(), subs
}

var (
	cp1252  = &Codec{name: "cp1252", cm: charmap.Windows1252}
	latin1  = &Codec{name: "iso-8859-1", cm: charmap.ISO8859_1}
	latin9  = &Codec{name: "iso-8859-15", cm: charmap.ISO8859_15}
	cp850   = &Codec{name: "cp850", cm: charmap.CodePage850}
	cp437   = &Codec{name: "cp437", cm: charmap.CodePage437}
	utf8Cdc = &Codec{name: "utf-8"}
)

// candidates is the fixed probe order for German-language DBF files:
// Windows codepage first, then the DOS codepages, with UTF-8 as the
// terminal fallback that can represent anything. The order is a priority
// list and user-visible output depends on it.
var candidates = []*Codec{cp1252, latin1, cp850, cp437, utf8Cdc}

// Candidates returns the ordered probe list. The final entry always
// decodes lossily without failing, so resolution cannot come up empty.
func Candidates() []*Codec {
	out := make([]*Codec, len(candidates))
	copy(out, candidates)
	return out
}

// Fallback returns the terminal entry of the candidate list.
func Fallback() *Codec { return candidates[len(candidates)-1] }

var byName = map[string]*Codec{
	"cp1252":       cp1252,
	"windows-1252": cp1252,
	"iso-8859-1":   latin1,
	"iso8859-1":    latin1,
	"latin1":       latin1,
	"latin-1":      latin1,
	"iso-8859-15":  latin9,
	"latin9":       latin9,
	"cp850":        cp850,
	"ibm850":       cp850,
	"cp437":        cp437,
	"ibm437":       cp437,
	"utf-8":        utf8Cdc,
	"utf8":         utf8Cdc,
}

// Lookup resolves a user-supplied encoding name to a Codec.
// Matching is case-insensitive and accepts common aliases.
func Lookup(name string) (*Codec, bool) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}
