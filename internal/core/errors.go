package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEncoding indicates a configured encoding name that is
	// not in the codec table.
	ErrUnknownEncoding = errors.New("unknown encoding")
)

// EncodingResolutionError is the hard failure raised when an explicitly
// chosen encoding cannot decode the source. Automatic resolution never
// produces it; it falls back instead.
type EncodingResolutionError struct {
	// Encoding is the name the caller supplied.
	Encoding string
	// Record is the zero-based index of the record that failed to
	// decode, or -1 when no record position is known.
	Record int
	Err    error
}

func (e *EncodingResolutionError) Error() string {
	if e.Record >= 0 {
		return fmt.Sprintf("encoding %q cannot decode source (record %d): %v", e.Encoding, e.Record, e.Err)
	}
	return fmt.Sprintf("encoding %q cannot decode source: %v", e.Encoding, e.Err)
}

func (e *EncodingResolutionError) Unwrap() error { return e.Err }

// DestinationError wraps a failed write to the output, carrying the
// number of records already written so the caller can report partial
// progress. Write failures are never retried: disk-full and permission
// problems are not transient.
type DestinationError struct {
	Records int
	Err     error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("writing destination after %d records: %v", e.Records, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// recordIndexer is implemented by record-scoped errors that know their
// position in the source (see dbf.RecordError).
type recordIndexer interface {
	RecordIndex() int
}

// recordIndex extracts a record position from an error chain, or -1.
func recordIndex(err error) int {
	var ri recordIndexer
	if errors.As(err, &ri) {
		return ri.RecordIndex()
	}
	return -1
}
