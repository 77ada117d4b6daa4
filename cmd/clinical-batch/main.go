package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/pipeline"
	"github.com/joseph-ayodele/clinical-extract/internal/export"
	"github.com/joseph-ayodele/clinical-extract/internal/ingest"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
	repo "github.com/joseph-ayodele/clinical-extract/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	var (
		dir            = flag.String("dir", "", "directory of PDFs to process (or pass files as arguments)")
		patternsPath   = flag.String("patterns", cfg.Patterns.Path, "pattern table (JSON or YAML); built-in table when missing")
		out            = flag.String("out", "", "output CSV path (defaults to <dir>/../"+constants.ExportBaseName+".csv)")
		xlsxOut        = flag.String("xlsx", "", "also write an XLSX workbook to this path")
		jsonOut        = flag.String("json", "", "also write a JSON array to this path")
		normalizeText  = flag.Bool("normalize", cfg.Batch.Normalize, "normalize text (decimal commas, whitespace) before matching")
		fileColumn     = flag.Bool("file-column", cfg.Batch.FileColumn, "prepend a column with the source file name")
		fileColumnName = flag.String("file-column-name", cfg.Batch.FileColumnName, "name of the source file column")
		exportPatterns = flag.String("export-patterns", "", "write the pattern table in use to this path and exit")
		skipHidden     = flag.Bool("skip-hidden", true, "skip hidden files and directories")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg.Patterns.Path = *patternsPath
	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if *exportPatterns != "" {
		format := constants.MapExtToPatternFormat(filepath.Ext(*exportPatterns))
		b, err := patterns.Export(pipe.Defaults, format)
		if err != nil {
			logger.Error("failed to export patterns", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*exportPatterns, b, 0o644); err != nil {
			logger.Error("failed to write patterns", "path", *exportPatterns, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Patterns written to %s (%d fields)\n", *exportPatterns, pipe.Defaults.Len())
		return
	}

	if *dir == "" && flag.NArg() == 0 {
		printError("Error: --dir or at least one PDF path is required\n")
		flag.Usage()
		os.Exit(2)
	}

	if *out == "" {
		base := *dir
		if base == "" {
			base = filepath.Dir(flag.Arg(0))
		}
		*out = filepath.Join(filepath.Dir(filepath.Clean(base)), constants.ExportBaseName+".csv")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var docs []core.Document
	if *dir != "" {
		var stats ingest.DirStats
		docs, _, stats, err = ingest.CollectDirectory(ctx, *dir, *skipHidden, logger)
		if err != nil {
			logger.Error("failed to read directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("ingestion complete",
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"deduplicated", stats.Deduplicated)
	}
	if flag.NArg() > 0 {
		more, err := ingest.ReadFiles(flag.Args())
		if err != nil {
			logger.Error("failed to read files", "error", err)
			os.Exit(1)
		}
		docs = append(docs, more...)
	}
	if len(docs) == 0 {
		printError("Error: no PDF files found\n")
		os.Exit(1)
	}

	// The session store keeps the run so the summary and every export read
	// the same persisted rows.
	db, err := repo.Open(ctx, repo.MemoryDSN, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	runs := repo.NewRunRepository(db, logger)

	opts := core.Options{
		Normalize:      *normalizeText,
		FileColumn:     *fileColumn,
		FileColumnName: strings.TrimSpace(*fileColumnName),
		Progress: func(done, total int) {
			logger.Info("progress", "done", done, "total", total)
		},
	}
	res, err := runBatch(ctx, pipe.Processor, runs, pipe.Defaults, docs, opts, logger)
	if err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	exporter := export.NewService(logger)
	outputs := []struct {
		path   string
		format constants.ExportFormat
	}{
		{*out, constants.ExportCSV},
		{*xlsxOut, constants.ExportXLSX},
		{*jsonOut, constants.ExportJSON},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		b, err := exporter.Bytes(res, o.format)
		if err != nil {
			logger.Error("failed to export results", "format", o.format, "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(o.path, b, 0o644); err != nil {
			logger.Error("failed to write output file", "path", o.path, "error", err)
			os.Exit(1)
		}
	}

	unreadable := 0
	for _, d := range res.Documents {
		if d.Unreadable {
			unreadable++
		}
	}
	logger.Info("batch processing complete",
		"run_id", res.RunID,
		"documents", len(res.Rows),
		"unreadable", unreadable,
		"fields", len(res.Columns),
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents: %d\n", len(res.Rows))
	fmt.Printf("- Unreadable: %d\n", unreadable)
	fmt.Printf("- Columns: %d\n", len(res.Columns))
	fmt.Printf("- Output: %s\n", *out)
}
