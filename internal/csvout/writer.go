// Package csvout emits delimited text with every field quoted.
//
// Downstream consumers of converted DBF exports expect the csv.QUOTE_ALL
// convention: each cell wrapped in double quotes regardless of content,
// with embedded quotes doubled. encoding/csv cannot force-quote clean
// fields, so this package carries its own writer.
package csvout

import (
	"bufio"
	"errors"
	"io"
)

// DefaultDelimiter is the field separator used when none is configured.
// Semicolon is the convention for German-locale CSV, where the comma is
// the decimal separator.
const DefaultDelimiter byte = ';'

var errWriterNoTarget = errors.New("csvout: writer destination cannot be nil")

// ErrBadDelimiter is returned for delimiters that would collide with the
// quoting grammar or the record terminator.
var ErrBadDelimiter = errors.New("csvout: delimiter must be a single printable byte other than quote, CR or LF")

// ValidDelimiter reports whether b is usable as a field separator.
func ValidDelimiter(b byte) bool {
	switch b {
	case '"', '\r', '\n', 0:
		return false
	}
	return true
}

// Writer writes quote-all CSV records to an underlying io.Writer.
// Errors are sticky: after the first failed write every subsequent call
// returns the same error.
type Writer struct {
	dst   *bufio.Writer
	comma byte
	err   error
}

// New creates a Writer emitting fields separated by delimiter.
func New(w io.Writer, delimiter byte) (*Writer, error) {
	if w == nil {
		return nil, errWriterNoTarget
	}
	if !ValidDelimiter(delimiter) {
		return nil, ErrBadDelimiter
	}
	return &Writer{
		dst:   bufio.NewWriterSize(w, 64<<10),
		comma: delimiter,
	}, nil
}

// Write emits one record. Every field is quoted and embedded quotes are
// doubled; the record is terminated with a single LF.
func (w *Writer) Write(record []string) error {
	if w.err != nil {
		return w.err
	}
	for i, field := range record {
		if i > 0 {
			if err := w.dst.WriteByte(w.comma); err != nil {
				return w.fail(err)
			}
		}
		if err := w.writeField(field); err != nil {
			return w.fail(err)
		}
	}
	if err := w.dst.WriteByte('\n'); err != nil {
		return w.fail(err)
	}
	return nil
}

// Flush writes buffered data to the destination.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.dst.Flush(); err != nil {
		return w.fail(err)
	}
	return nil
}

// Err reports the first error encountered by the writer.
func (w *Writer) Err() error { return w.err }

func (w *Writer) fail(err error) error {
	w.err = err
	return err
}

func (w *Writer) writeField(field string) error {
	if err := w.dst.WriteByte('"'); err != nil {
		return err
	}
	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] == '"' {
			if start < i {
				if _, err := w.dst.WriteString(field[start:i]); err != nil {
					return err
				}
			}
			if _, err := w.dst.WriteString(`""`); err != nil {
				return err
			}
			start = i + 1
		}
	}
	if start < len(field) {
		if _, err := w.dst.WriteString(field[start:]); err != nil {
			return err
		}
	}
	return w.dst.WriteByte('"')
}
