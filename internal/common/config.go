package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Extract  ExtractConfig  `yaml:"extract"`
	Fields   FieldsConfig   `yaml:"fields"`
	Batch    BatchConfig    `yaml:"batch"`
	Patterns PatternsConfig `yaml:"patterns"`
	Queue    QueueConfig    `yaml:"queue"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCAddr       string `yaml:"grpc_addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// ExtractConfig holds PDF text extraction configuration
type ExtractConfig struct {
	MinChars        int      `yaml:"min_chars"`
	Strategies      []string `yaml:"strategies"`
	Pdftotext       string   `yaml:"pdftotext"`
	EnablePdftotext bool     `yaml:"enable_pdftotext"`
}

// FieldsConfig holds field-extraction configuration
type FieldsConfig struct {
	Engine       string        `yaml:"engine"`
	MatchTimeout time.Duration `yaml:"match_timeout"`
}

// BatchConfig holds the per-run defaults
type BatchConfig struct {
	Normalize      bool   `yaml:"normalize"`
	FileColumn     bool   `yaml:"file_column"`
	FileColumnName string `yaml:"file_column_name"`
}

// PatternsConfig holds where the default pattern table comes from
type PatternsConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig holds async run queue configuration
type QueueConfig struct {
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			GRPCAddr:       ":9090",
			MaxUploadBytes: 64 << 20,
		},
		Extract: ExtractConfig{
			MinChars:   50,
			Strategies: []string{"pdf-text", "pdfcpu-content", "pdftotext"},
			Pdftotext:  "pdftotext",
		},
		Fields: FieldsConfig{
			Engine:       "regexp2",
			MatchTimeout: 2 * time.Second,
		},
		Batch: BatchConfig{
			Normalize:      true,
			FileColumn:     true,
			FileColumnName: "file",
		},
		Patterns: PatternsConfig{
			Path: "patterns_es.json",
		},
		Queue: QueueConfig{
			Workers:    2,
			QueueSize:  64,
			RunTimeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from an optional YAML file (CLINICAL_CONFIG)
// and then environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := getEnv("CLINICAL_CONFIG", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfig, fmt.Sprintf("read config file %q", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError(CodeConfig, fmt.Sprintf("parse config file %q", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)

	c.Extract.MinChars = getEnvAsInt("EXTRACT_MIN_CHARS", c.Extract.MinChars)
	c.Extract.Strategies = getEnvAsList("EXTRACT_STRATEGIES", c.Extract.Strategies)
	c.Extract.Pdftotext = getEnv("PDFTOTEXT", c.Extract.Pdftotext)
	c.Extract.EnablePdftotext = getEnvAsBool("ENABLE_PDFTOTEXT", c.Extract.EnablePdftotext)

	c.Fields.Engine = getEnv("PATTERN_ENGINE", c.Fields.Engine)
	c.Fields.MatchTimeout = getEnvAsDuration("PATTERN_MATCH_TIMEOUT", c.Fields.MatchTimeout)

	c.Batch.Normalize = getEnvAsBool("NORMALIZE_TEXT", c.Batch.Normalize)
	c.Batch.FileColumn = getEnvAsBool("FILE_COLUMN", c.Batch.FileColumn)
	c.Batch.FileColumnName = getEnv("FILE_COLUMN_NAME", c.Batch.FileColumnName)

	c.Patterns.Path = getEnv("PATTERNS_FILE", c.Patterns.Path)

	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Queue.QueueSize)
	c.Queue.RunTimeout = getEnvAsDuration("RUN_TIMEOUT", c.Queue.RunTimeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("extract.min_chars", c.Extract.MinChars, NonNegative)
	v.Field("extract.strategies", c.Extract.Strategies, NonEmptyList)
	v.Field("fields.engine", c.Fields.Engine, OneOf("regexp2", "re2"))
	v.Field("log.format", c.Log.Format, OneOf("json", "text"))
	if c.Batch.FileColumn {
		v.Field("batch.file_column_name", c.Batch.FileColumnName, Required)
	}
	v.Field("queue.workers", c.Queue.Workers, Positive)
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
