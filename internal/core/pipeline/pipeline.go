// Package pipeline assembles the two extraction stages from configuration so
// every binary runs the same PDF -> text -> fields chain.
package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/core/textextract"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

// Pipeline holds the configured stages.
type Pipeline struct {
	Text      *textextract.Extractor
	Fields    fields.Options
	Defaults  *patterns.Table
	Processor *core.Processor
}

// New validates cfg and builds both stages. The default table is read from
// cfg.Patterns.Path when that file exists, otherwise the built-in one is used.
func New(cfg *common.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := fields.ParseEngine(cfg.Fields.Engine)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, err.Error(), common.ErrInvalidInput)
	}
	fopts := fields.Options{Engine: engine, MatchTimeout: cfg.Fields.MatchTimeout, Logger: logger}

	text, err := textextract.FromConfig(cfg.Extract, logger)
	if err != nil {
		return nil, err
	}

	defaults, err := patterns.LoadDefaultOrFile(cfg.Patterns.Path, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("pipeline ready",
		"strategies", text.Strategies(),
		"engine", string(engine),
		"min_chars", cfg.Extract.MinChars,
		"default_fields", defaults.Len())

	return &Pipeline{
		Text:      text,
		Fields:    fopts,
		Defaults:  defaults,
		Processor: core.NewProcessor(logger, text, fopts),
	}, nil
}

// Options returns the batch defaults from cfg as run options.
func Options(cfg common.BatchConfig) core.Options {
	return core.Options{
		Normalize:      cfg.Normalize,
		FileColumn:     cfg.FileColumn,
		FileColumnName: cfg.FileColumnName,
	}
}
