// Package core converts DBF tables to delimited text.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"time"

	"github.com/r4inX/dbf-to-csv-converter/internal/charset"
	"github.com/r4inX/dbf-to-csv-converter/internal/dbf"
)

// RawRecord maps DBF field names to decoded typed values. Values are
// string, int64, float64, bool, time.Time, or nil for absent fields.
// Records are transient: the conversion loop owns one at a time and
// discards it after sanitization.
type RawRecord = map[string]any

// SanitizedRow maps the same field names to CSV-safe text. Every field
// of the source record is present and non-nil.
type SanitizedRow map[string]string

// RecordReader is a forward-only pass over a table's live records.
type RecordReader interface {
	// Next returns the next record, io.EOF after the last one, or a
	// record-scoped error the caller may skip past.
	Next() (RawRecord, error)
	// Index is the zero-based physical index of the last record
	// returned, -1 before the first.
	Index() int
	// Substituted is the running count of characters replaced during
	// non-strict decoding.
	Substituted() int
}

// Table is the DBF-reading capability the converter consumes. Each Rows
// call yields an independent iterator starting at the first record, so
// encoding resolution can probe without consuming the primary stream.
type Table interface {
	Fields() []string
	Rows(codec *charset.Codec, strict bool) RecordReader
}

// DBFTable adapts a parsed DBF file to the Table interface.
func DBFTable(t *dbf.Table) Table { return dbfTable{t} }

type dbfTable struct{ *dbf.Table }

func (t dbfTable) Rows(codec *charset.Codec, strict bool) RecordReader {
	return t.Table.Rows(codec, strict)
}

// ProgressFunc is invoked with the running record count every
// Options.ProgressInterval records.
type ProgressFunc func(processed int)

// Options configures one conversion run.
type Options struct {
	// Encoding is the source encoding name, or "auto"/"" to probe the
	// candidate list.
	Encoding string

	// Delimiter separates output fields. Zero means csvout.DefaultDelimiter.
	Delimiter byte

	// OutputEncoding names the destination text encoding. Empty means UTF-8.
	OutputEncoding string

	// ProgressInterval is the record period between Progress calls.
	// Zero means 1000.
	ProgressInterval int

	// Progress receives periodic record counts. May be nil.
	Progress ProgressFunc

	// Validator, when non-nil, observes every converted record for
	// data-quality analysis.
	Validator *Validator
}

// Stats accumulates the outcome of one conversion run. It is created at
// run start, returned at run end, and never shared across runs.
type Stats struct {
	// Records is the number of rows written, excluding the header.
	Records int
	// Skipped counts records the DBF layer could not parse.
	Skipped int
	// Substituted counts characters replaced during lossy decoding.
	Substituted int
	// Encoding is the source codec actually used.
	Encoding string
	// Confident is false when the encoding was chosen without any
	// candidate fully validating against sampled data.
	Confident bool
	Duration  time.Duration
}
