package core

import (
	"errors"
	"io"
	"strings"

	"github.com/r4inX/dbf-to-csv-converter/internal/charset"
)

// ProbeSampleSize is the number of leading records each candidate
// encoding must decode cleanly to be selected.
const ProbeSampleSize = 10

// Resolution is the outcome of encoding resolution.
type Resolution struct {
	Codec *charset.Codec
	// Confident is false when no candidate fully validated against the
	// sample: either the source was empty or every candidate was
	// disqualified and the terminal fallback was chosen anyway.
	Confident bool
	// Explicit is true when the caller named the encoding; the run must
	// then decode strictly and fail hard on the first bad byte.
	Explicit bool
	// Sampled is the number of records the winning probe examined.
	Sampled int
}

// ResolveEncoding determines the codec for decoding tbl's text fields.
//
// An explicit name is trusted verbatim, never probed and never
// second-guessed; only an unknown name fails here. With "auto" (or
// empty) the fixed candidate list is tried in order against the first
// ProbeSampleSize records, and the first candidate that decodes the
// whole sample without error wins. Order is the tie-break between
// codecs that both decode the same bytes to different text, so it is
// semantic, not cosmetic.
//
// Resolution itself never fails in auto mode: if every candidate is
// disqualified the terminal fallback is returned with Confident=false
// and the conversion degrades to substituting undecodable bytes.
func ResolveEncoding(tbl Table, explicit string) (Resolution, error) {
	name := strings.TrimSpace(explicit)
	if name != "" && !strings.EqualFold(name, "auto") {
		codec, ok := charset.Lookup(name)
		if !ok {
			return Resolution{}, &EncodingResolutionError{Encoding: name, Record: -1, Err: ErrUnknownEncoding}
		}
		return Resolution{Codec: codec, Confident: true, Explicit: true}, nil
	}

	var lastSampled int
	for _, codec := range charset.Candidates() {
		ok, sampled := probe(tbl, codec)
		lastSampled = sampled
		if !ok {
			continue
		}
		if sampled == 0 {
			// Empty source: nothing disqualified the first candidate,
			// but nothing vouched for it either.
			return Resolution{Codec: codec, Confident: false}, nil
		}
		return Resolution{Codec: codec, Confident: true, Sampled: sampled}, nil
	}

	return Resolution{Codec: charset.Fallback(), Confident: false, Sampled: lastSampled}, nil
}

// probe strictly decodes up to ProbeSampleSize leading records under
// codec. A single undecodable byte disqualifies the candidate; records
// the DBF layer itself cannot parse say nothing about the encoding and
// are passed over.
func probe(tbl Table, codec *charset.Codec) (ok bool, sampled int) {
	rows := tbl.Rows(codec, true)
	for sampled < ProbeSampleSize {
		_, err := rows.Next()
		if err == nil {
			sampled++
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		var de *charset.DecodeError
		if errors.As(err, &de) {
			return false, sampled
		}
	}
	return true, sampled
}
