package core

import (
	"fmt"
	"hash/fnv"
	"os"
	"regexp"

	"github.com/bytedance/sonic"
)

// Validation caps keep memory bounded on large tables: distributions and
// samples are truncated, duplicate groups are tracked by hash only.
const (
	maxSampleValues  = 20
	maxTrackedValues = 2000
	maxPatternLen    = 200
)

var (
	emailRe   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe   = regexp.MustCompile(`^\+?[\d\s\-()/]{7,}$`)
	dateRe    = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{2,4}`)
	numericRe = regexp.MustCompile(`^\d+(\.\d+)?$`)
	postalRe  = regexp.MustCompile(`^\d{5}$`)
	germanRe  = regexp.MustCompile(`[äöüßÄÖÜ]`)
)

// Validator accumulates data-quality observations over the rows of one
// conversion run. It works on the sanitized view of each record, one row
// at a time, so it adds no buffering to the streaming pipeline.
type Validator struct {
	fields []string
	total  int
	groups map[uint64]*dupGroup
	stats  map[string]*fieldAccum
}

type dupGroup struct {
	count int
	first int // record ordinal of the first occurrence
}

type fieldAccum struct {
	nulls    int
	minLen   int
	maxLen   int
	values   map[string]int
	overflow bool // value distribution hit maxTrackedValues
	samples  []string
	patterns patternCounts
}

type patternCounts struct {
	Email   int `json:"email_like"`
	Phone   int `json:"phone_like"`
	Date    int `json:"date_like"`
	Numeric int `json:"numeric_like"`
	Postal  int `json:"postal_code_like"`
	German  int `json:"german_characters"`
}

// NewValidator creates a validator for a table with the given fields.
func NewValidator(fields []string) *Validator {
	v := &Validator{
		fields: fields,
		groups: make(map[uint64]*dupGroup),
		stats:  make(map[string]*fieldAccum, len(fields)),
	}
	for _, f := range fields {
		v.stats[f] = &fieldAccum{minLen: -1, values: make(map[string]int)}
	}
	return v
}

// Add observes one sanitized row.
func (v *Validator) Add(row SanitizedRow) {
	v.total++

	h := fnv.New64a()
	for _, f := range v.fields {
		h.Write([]byte(f))
		h.Write([]byte{0x1F})
		h.Write([]byte(row[f]))
		h.Write([]byte{0x1E})
	}
	sum := h.Sum64()
	if g, ok := v.groups[sum]; ok {
		g.count++
	} else {
		v.groups[sum] = &dupGroup{count: 1, first: v.total - 1}
	}

	for _, f := range v.fields {
		v.stats[f].observe(row[f])
	}
}

func (a *fieldAccum) observe(val string) {
	if val == "" {
		a.nulls++
		return
	}
	n := len([]rune(val))
	if a.minLen < 0 || n < a.minLen {
		a.minLen = n
	}
	if n > a.maxLen {
		a.maxLen = n
	}
	if len(a.values) < maxTrackedValues {
		a.values[val]++
	} else if _, ok := a.values[val]; ok {
		a.values[val]++
	} else {
		a.overflow = true
	}
	if len(a.samples) < maxSampleValues {
		a.samples = append(a.samples, truncate(val, 50))
	}
	if len(val) <= maxPatternLen {
		a.patterns.count(val)
	}
}

func (p *patternCounts) count(val string) {
	if emailRe.MatchString(val) {
		p.Email++
	}
	if phoneRe.MatchString(val) {
		p.Phone++
	}
	if dateRe.MatchString(val) {
		p.Date++
	}
	if numericRe.MatchString(val) {
		p.Numeric++
	}
	if postalRe.MatchString(val) {
		p.Postal++
	}
	if germanRe.MatchString(val) {
		p.German++
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ValidationReport is the final data-quality analysis for one run.
type ValidationReport struct {
	TotalRecords       int              `json:"total_records"`
	Encoding           string           `json:"encoding"`
	EncodingConfidence string           `json:"encoding_confidence"` // high, medium or low
	SubstitutedChars   int              `json:"substituted_chars"`
	Duplicates         DuplicateReport  `json:"duplicates"`
	Fields             []FieldReport    `json:"fields"`
	QualityGrade       string           `json:"quality_grade"`
	KeyFindings        []string         `json:"key_findings"`
	Recommendations    []string         `json:"recommendations"`
}

// DuplicateReport summarizes fully identical records.
type DuplicateReport struct {
	Groups           int     `json:"groups"`
	DuplicateRecords int     `json:"duplicate_records"`
	Percentage       float64 `json:"percentage"`
}

// FieldReport summarizes one column.
type FieldReport struct {
	Name        string        `json:"name"`
	FillRate    float64       `json:"fill_rate"`
	Nulls       int           `json:"null_count"`
	UniqueCount int           `json:"unique_count"`
	MinLength   int           `json:"min_length"`
	MaxLength   int           `json:"max_length"`
	Categorical bool          `json:"appears_categorical"`
	Samples     []string      `json:"sample_values"`
	Patterns    patternCounts `json:"pattern_analysis"`
}

// Report finalizes the analysis. stats supplies the encoding outcome of
// the run the validator observed.
func (v *Validator) Report(stats *Stats) *ValidationReport {
	rep := &ValidationReport{
		TotalRecords:     v.total,
		Encoding:         stats.Encoding,
		SubstitutedChars: stats.Substituted,
	}

	switch {
	case stats.Confident && stats.Substituted == 0:
		rep.EncodingConfidence = "high"
	case stats.Confident:
		rep.EncodingConfidence = "medium"
	default:
		rep.EncodingConfidence = "low"
	}

	for _, g := range v.groups {
		if g.count > 1 {
			rep.Duplicates.Groups++
			rep.Duplicates.DuplicateRecords += g.count
		}
	}
	if v.total > 0 {
		rep.Duplicates.Percentage = float64(rep.Duplicates.DuplicateRecords) / float64(v.total) * 100
	}

	germanSeen := false
	var lowFill []string
	for _, f := range v.fields {
		a := v.stats[f]
		fr := FieldReport{
			Name:        f,
			Nulls:       a.nulls,
			UniqueCount: len(a.values),
			MinLength:   max(a.minLen, 0),
			MaxLength:   a.maxLen,
			Samples:     a.samples,
			Patterns:    a.patterns,
		}
		if v.total > 0 {
			fr.FillRate = float64(v.total-a.nulls) / float64(v.total) * 100
		}
		fr.Categorical = !a.overflow && len(a.values) < 100 && len(a.values)*10 < v.total
		if fr.FillRate < 50 && v.total > 0 {
			lowFill = append(lowFill, f)
		}
		if a.patterns.German > 0 {
			germanSeen = true
		}
		rep.Fields = append(rep.Fields, fr)
	}

	rep.QualityGrade = grade(rep)
	rep.KeyFindings, rep.Recommendations = summarize(rep, lowFill, germanSeen)
	return rep
}

func grade(rep *ValidationReport) string {
	score := 100.0
	score -= min(rep.Duplicates.Percentage, 30)

	if len(rep.Fields) > 0 {
		var fill float64
		for _, f := range rep.Fields {
			fill += f.FillRate
		}
		fill /= float64(len(rep.Fields))
		score -= min((100-fill)/2, 30)
	}

	if rep.SubstitutedChars > 0 {
		score -= 20
	}
	if rep.EncodingConfidence == "low" {
		score -= 10
	}

	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func summarize(rep *ValidationReport, lowFill []string, german bool) (findings, recs []string) {
	if rep.Duplicates.Groups > 0 {
		findings = append(findings, fmt.Sprintf("%d duplicate record groups (%d records, %.1f%%)",
			rep.Duplicates.Groups, rep.Duplicates.DuplicateRecords, rep.Duplicates.Percentage))
		recs = append(recs, "review duplicate groups before importing the CSV downstream")
	}
	if len(lowFill) > 0 {
		findings = append(findings, fmt.Sprintf("%d fields are less than half filled: %v", len(lowFill), lowFill))
	}
	if german {
		findings = append(findings, "German characters present; verify umlauts survived in the output")
	}
	if rep.SubstitutedChars > 0 {
		findings = append(findings, fmt.Sprintf("%d characters could not be decoded and were substituted", rep.SubstitutedChars))
		recs = append(recs, "re-run with an explicit -encoding if the source codepage is known")
	}
	if rep.EncodingConfidence == "low" {
		recs = append(recs, "no candidate encoding validated cleanly; spot-check text fields")
	}
	return findings, recs
}

// WriteJSON saves the report to path as indented JSON.
func (r *ValidationReport) WriteJSON(path string) error {
	data, err := sonic.ConfigDefault.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode validation report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write validation report: %w", err)
	}
	return nil
}
