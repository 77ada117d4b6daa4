package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/core/normalize"
	"github.com/joseph-ayodele/clinical-extract/internal/core/pipeline"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	var (
		normalizeText = flag.Bool("normalize", false, "print and match the normalized text")
		patternsPath  = flag.String("patterns", cfg.Patterns.Path, "pattern table to explain against")
		textOnly      = flag.Bool("text-only", false, "print only the extracted text")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "extracttext [-normalize] [-patterns file] <file.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg.Patterns.Path = *patternsPath
	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res := pipe.Text.Extract(ctx, data)
	for _, a := range res.Attempts {
		logger.Info("strategy attempt",
			"strategy", a.Strategy,
			"chars", a.Chars,
			"pages", a.Pages,
			"unavailable", a.Unavailable,
			"error", a.Error,
			"duration_ms", a.Duration.Milliseconds())
	}
	if res.Unreadable {
		logger.Error("no text layer found", "path", path, "attempts", len(res.Attempts))
		os.Exit(1)
	}
	logger.Info("text extraction OK",
		"method", res.Method,
		"pages", res.Pages,
		"chars", len([]rune(res.Text)),
		"duration_ms", res.Duration.Milliseconds())

	text := res.Text
	if *normalizeText {
		text = normalize.Normalize(text)
	}
	fmt.Println(text)
	if *textOnly {
		return
	}

	fmt.Println("----")
	ex := fields.Compile(pipe.Defaults, pipe.Fields)
	for _, tr := range ex.Explain(text) {
		if tr.Value == nil {
			fmt.Printf("%-14s -\n", tr.Field)
		} else {
			fmt.Printf("%-14s %q\n", tr.Field, *tr.Value)
		}
		for _, a := range tr.Attempts {
			line := fmt.Sprintf("    #%d %s", a.Index, a.Result.Outcome)
			if a.Result.Err != nil {
				line += ": " + a.Result.Err.Error()
			}
			fmt.Println(line)
		}
	}
}
