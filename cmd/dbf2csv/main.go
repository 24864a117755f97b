// Command dbf2csv converts a dBASE table file to quote-all CSV.
//
// Usage:
//
//	dbf2csv [flags] input.dbf
//
// By default the output lands next to the input with a .csv extension,
// text is decoded with automatic encoding detection and re-encoded as
// UTF-8, and fields are separated by semicolons.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/r4inX/dbf-to-csv-converter/internal/config"
	"github.com/r4inX/dbf-to-csv-converter/internal/core"
	"github.com/r4inX/dbf-to-csv-converter/internal/dbf"
	"github.com/r4inX/dbf-to-csv-converter/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", core.FormatUserError(err))
		slog.Debug("conversion failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		output     = flag.String("o", "", "output CSV path (default: input with .csv extension)")
		encoding   = flag.String("encoding", cfg.Convert.Encoding, "source encoding, or \"auto\" to probe candidates")
		delimiter  = flag.String("delimiter", cfg.Convert.Delimiter, "CSV field separator, exactly one character")
		outputEnc  = flag.String("output-encoding", cfg.Convert.OutputEncoding, "encoding of the generated CSV")
		force      = flag.Bool("force", false, "overwrite the output file if it exists")
		quiet      = flag.Bool("quiet", false, "suppress progress output")
		validate   = flag.Bool("validate", false, "print a data-quality summary after converting")
		reportPath = flag.String("validation-report", "", "write the full data-quality report as JSON to this path")
		logLevel   = flag.String("log-level", cfg.Logging.Level, "log level: debug, info, warn, error")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] input.dbf\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logging.Setup(*logLevel, cfg.Logging.Format)

	if flag.NArg() != 1 {
		flag.Usage()
		return errors.New("exactly one input file is required")
	}
	input := flag.Arg(0)

	if !strings.EqualFold(filepath.Ext(input), ".dbf") {
		return fmt.Errorf("%s is not a dbf file", input)
	}
	if len(*delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single printable byte other than quote, CR or LF, got %q", *delimiter)
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".csv"
	}
	if !*force {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("output file %s already exists, use -force to overwrite", out)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := dbf.Open(input)
	if err != nil {
		return err
	}
	defer table.Close()

	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("writing destination: %w", err)
	}

	opts := core.Options{
		Encoding:         *encoding,
		Delimiter:        (*delimiter)[0],
		OutputEncoding:   *outputEnc,
		ProgressInterval: cfg.Convert.ProgressInterval,
	}
	if !*quiet {
		total := table.RecordCount()
		opts.Progress = func(n int) {
			fmt.Fprintf(os.Stderr, "\r%d/%d records", n, total)
		}
	}
	if *validate || *reportPath != "" {
		opts.Validator = core.NewValidator(table.Fields())
	}

	stats, err := core.Convert(ctx, core.DBFTable(table), dst, opts)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = &core.DestinationError{Records: stats.Records, Err: cerr}
	}
	if err != nil {
		os.Remove(out) // partial output is worse than none
		return err
	}
	if !*quiet {
		fmt.Fprint(os.Stderr, "\r")
	}

	slog.Info("conversion finished",
		"input", input,
		"output", out,
		"records", stats.Records,
		"skipped", stats.Skipped,
		"substituted", stats.Substituted,
		"encoding", stats.Encoding,
		"confident", stats.Confident,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	if !stats.Confident {
		slog.Warn("no candidate encoding validated cleanly, output may contain substituted characters",
			"encoding", stats.Encoding)
	}

	if opts.Validator != nil {
		report := opts.Validator.Report(stats)
		if *validate {
			printSummary(report)
		}
		if *reportPath != "" {
			if err := report.WriteJSON(*reportPath); err != nil {
				return err
			}
			slog.Info("validation report written", "path", *reportPath)
		}
	}

	return nil
}

func printSummary(r *core.ValidationReport) {
	fmt.Printf("Quality grade: %s\n", r.QualityGrade)
	fmt.Printf("Records: %d, duplicate groups: %d, encoding confidence: %s\n",
		r.TotalRecords, r.Duplicates.Groups, r.EncodingConfidence)
	for _, f := range r.KeyFindings {
		fmt.Println("  -", f)
	}
	for _, rec := range r.Recommendations {
		fmt.Println("  > ", rec)
	}
}
