package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/clinical-extract/internal/core"
)

type FileResult struct {
	Path         string
	Deduplicated bool
	HashHex      string
	Err          string
}

type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// CollectDirectory walks root in lexical order, reads every PDF and returns one
// document per distinct content. Files whose bytes were already seen are
// reported as deduplicated and left out. Unreadable files are reported in the
// results and do not stop the walk.
func CollectDirectory(ctx context.Context, root string, skipHidden bool, logger *slog.Logger) ([]core.Document, []FileResult, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var (
		docs    []core.Document
		results []FileResult
		stats   DirStats
		seen    = map[string]string{}
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		b, err := os.ReadFile(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			logger.Warn("failed to read file", "path", path, "error", err)
			return nil
		}
		sum := sha256.Sum256(b)
		hashHex := hex.EncodeToString(sum[:])
		if first, dup := seen[hashHex]; dup {
			results = append(results, FileResult{Path: path, Deduplicated: true, HashHex: hashHex})
			stats.Deduplicated++
			logger.Info("duplicate content skipped", "path", path, "same_as", first)
			return nil
		}
		seen[hashHex] = path

		docs = append(docs, core.Document{Name: filepath.Base(path), Content: b})
		results = append(results, FileResult{Path: path, HashHex: hashHex})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return docs, results, stats, fmt.Errorf("walk: %w", err)
	}
	return docs, results, stats, nil
}

// ReadFiles reads an explicit list of files in the given order. Duplicates are
// kept: the caller asked for each of them.
func ReadFiles(paths []string) ([]core.Document, error) {
	docs := make([]core.Document, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		docs = append(docs, core.Document{Name: filepath.Base(p), Content: b})
	}
	return docs, nil
}
