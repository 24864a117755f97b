package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/r4inX/dbf-to-csv-converter/internal/charset"
	"github.com/r4inX/dbf-to-csv-converter/internal/csvout"
)

// DefaultProgressInterval is the record period between progress reports
// when Options does not set one.
const DefaultProgressInterval = 1000

// Convert streams tbl into dst as quote-all CSV: one header row of field
// names in source order, then one row per live record, each cell
// sanitized. Records are processed strictly in file order, one at a
// time, so memory stays flat regardless of table size.
//
// Individual records the DBF layer cannot parse are skipped and counted
// in Stats.Skipped; they never abort the run. A decode failure under an
// explicitly chosen encoding is fatal and reported as an
// *EncodingResolutionError naming the record. Destination write
// failures are fatal and carry the partial record count.
//
// The returned Stats is valid even when err is non-nil, so callers can
// report partial progress.
func Convert(ctx context.Context, tbl Table, dst io.Writer, opts Options) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	res, err := ResolveEncoding(tbl, opts.Encoding)
	if err != nil {
		return stats, err
	}
	stats.Encoding = res.Codec.Name()
	stats.Confident = res.Confident

	outName := opts.OutputEncoding
	if outName == "" {
		outName = "utf-8"
	}
	outCodec, ok := charset.Lookup(outName)
	if !ok {
		return stats, fmt.Errorf("output encoding %q: %w", outName, ErrUnknownEncoding)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = csvout.DefaultDelimiter
	}
	encDst := outCodec.Writer(dst)
	w, err := csvout.New(encDst, delim)
	if err != nil {
		return stats, err
	}

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	// Explicit encodings are trusted but verified: every byte decodes
	// strictly and the first failure aborts. Auto-resolved encodings
	// decode lossily past the probe window so a late bad byte degrades
	// to substitution instead of killing the run.
	rows := tbl.Rows(res.Codec, res.Explicit)

	// fail finalizes Stats for an aborted run so substitutions made
	// before the error stay visible to the caller.
	fail := func(err error) (*Stats, error) {
		stats.Substituted = rows.Substituted()
		stats.Duration = time.Since(start)
		return stats, err
	}

	fields := tbl.Fields()
	if err := w.Write(fields); err != nil {
		return fail(&DestinationError{Records: 0, Err: err})
	}
	ordered := make([]string, len(fields))

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		rec, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var de *charset.DecodeError
			if errors.As(err, &de) {
				return fail(&EncodingResolutionError{
					Encoding: res.Codec.Name(),
					Record:   recordIndex(err),
					Err:      err,
				})
			}
			stats.Skipped++
			slog.Debug("skipping unparseable record", "index", recordIndex(err), "error", err)
			continue
		}

		row := Sanitize(rec)
		for i, name := range fields {
			ordered[i] = row[name]
		}
		if err := w.Write(ordered); err != nil {
			return fail(&DestinationError{Records: stats.Records, Err: err})
		}

		if opts.Validator != nil {
			opts.Validator.Add(row)
		}

		stats.Records++
		if opts.Progress != nil && stats.Records%interval == 0 {
			opts.Progress(stats.Records)
		}
	}

	if err := w.Flush(); err != nil {
		return fail(&DestinationError{Records: stats.Records, Err: err})
	}
	// Transform writers may hold a partial rune until closed.
	if c, ok := encDst.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fail(&DestinationError{Records: stats.Records, Err: err})
		}
	}

	stats.Substituted = rows.Substituted()
	stats.Duration = time.Since(start)
	return stats, nil
}
