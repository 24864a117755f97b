package dbf

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/r4inX/dbf-to-csv-converter/internal/charset"
)

// RecordError reports a record that could not be parsed. The record is
// identified by its zero-based physical index in the file.
type RecordError struct {
	Index int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("dbf: record %d field %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("dbf: record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// RecordIndex returns the failing record's physical index.
func (e *RecordError) RecordIndex() int { return e.Index }

// Rows iterates the table's records in file order, skipping records
// flagged as deleted. Each Rows is independent; creating a new one
// restarts from the first record.
type Rows struct {
	t      *Table
	codec  *charset.Codec
	strict bool
	next   int // next physical record index
	cur    int // physical index of the last record returned
	subs   int
	buf    []byte
}

// Rows returns a fresh iterator decoding text fields with codec.
// In strict mode an undecodable byte fails the record with a
// *RecordError wrapping *charset.DecodeError; otherwise the byte is
// substituted and counted.
func (t *Table) Rows(codec *charset.Codec, strict bool) *Rows {
	return &Rows{
		t:      t,
		codec:  codec,
		strict: strict,
		cur:    -1,
		buf:    make([]byte, t.hdr.RecordLen),
	}
}

// Next returns the next live record as a field-name-to-value map.
// Values are string, int64, float64, bool, time.Time or nil.
// It returns io.EOF after the last record.
func (r *Rows) Next() (map[string]any, error) {
	for {
		if r.next >= r.t.RecordCount() {
			return nil, io.EOF
		}
		idx := r.next
		r.next++

		off := int64(r.t.hdr.HeaderLen) + int64(idx)*int64(r.t.hdr.RecordLen)
		if _, err := r.t.r.ReadAt(r.buf, off); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				// Header promised more records than the file holds.
				return nil, io.EOF
			}
			return nil, &RecordError{Index: idx, Err: err}
		}
		if r.buf[0] == deletedFlag {
			continue
		}

		rec := make(map[string]any, len(r.t.fields))
		for _, f := range r.t.fields {
			v, err := r.decodeField(f, r.buf[f.offset:f.offset+f.Length])
			if err != nil {
				return nil, &RecordError{Index: idx, Field: f.Name, Err: err}
			}
			rec[f.Name] = v
		}
		r.cur = idx
		return rec, nil
	}
}

// Index returns the physical index of the record last returned by Next,
// or -1 before the first call.
func (r *Rows) Index() int { return r.cur }

// Substituted returns the number of characters replaced so far when
// decoding non-strictly.
func (r *Rows) Substituted() int { return r.subs }

func (r *Rows) decodeField(f Field, raw []byte) (any, error) {
	switch f.Type {
	case 'C':
		return r.decodeText(raw)
	case 'N':
		return decodeNumeric(raw, f.Decimals)
	case 'F':
		return decodeFloat(raw)
	case 'D':
		return decodeDate(raw)
	case 'L':
		return decodeLogical(raw), nil
	case 'I':
		if len(raw) != 4 {
			return nil, fmt.Errorf("integer field has width %d", len(raw))
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	case 'M':
		// Memo content lives in a companion file we do not read.
		return nil, nil
	default:
		// Unknown types carry text payloads often enough that decoding
		// as character data beats refusing the record.
		return r.decodeText(raw)
	}
}

func (r *Rows) decodeText(raw []byte) (string, error) {
	trimmed := trimPadding(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	if r.strict {
		return r.codec.Decode(trimmed)
	}
	s, n := r.codec.DecodeLossy(trimmed)
	r.subs += n
	return s, nil
}

func decodeNumeric(raw []byte, decimals int) (any, error) {
	s := strings.TrimSpace(string(trimPadding(raw)))
	if s == "" || strings.Trim(s, "*") == "" {
		// All-asterisk means numeric overflow at write time.
		return nil, nil
	}
	if decimals > 0 || strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad numeric value %q", s)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad numeric value %q", s)
	}
	return n, nil
}

func decodeFloat(raw []byte) (any, error) {
	s := strings.TrimSpace(string(trimPadding(raw)))
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("bad float value %q", s)
	}
	return f, nil
}

func decodeDate(raw []byte) (any, error) {
	s := strings.TrimSpace(string(trimPadding(raw)))
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil, fmt.Errorf("bad date value %q", s)
	}
	return t, nil
}

func decodeLogical(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case 'T', 't', 'Y', 'y':
		return true
	case 'F', 'f', 'N', 'n':
		return false
	default:
		// '?' and space mean uninitialized.
		return nil
	}
}

// trimPadding strips the space and NUL padding dBASE writers use to fill
// fixed-width fields.
func trimPadding(raw []byte) []byte {
	start, end := 0, len(raw)
	for start < end && (raw[start] == 0x00) {
		start++
	}
	for end > start && (raw[end-1] == 0x00 || raw[end-1] == ' ') {
		end--
	}
	return raw[start:end]
}
