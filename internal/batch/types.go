package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is the layout of a log archive
type Format string

const (
	// FormatText has one message per line
	FormatText Format = "text"
	// FormatJSONL has one JSON object per line with the message in a field
	FormatJSONL Format = "jsonl"
	// FormatParquet stores LogRecord rows
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name; "" and "auto" return ""
func ParseFormat(name string) (Format, bool) {
	switch Format(strings.ToLower(name)) {
	case "", "auto":
		return "", true
	case FormatText:
		return FormatText, true
	case FormatJSONL, "ndjson":
		return FormatJSONL, true
	case FormatParquet:
		return FormatParquet, true
	}
	return "", false
}

// DetectFormat detects file format from extension
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatText
	}
}

// LogRecord is a row of a parquet log archive
type LogRecord struct {
	Timestamp int64  `parquet:"timestamp" json:"timestamp"`
	Level     string `parquet:"level" json:"level"`
	Logger    string `parquet:"logger" json:"logger"`
	Message   string `parquet:"message" json:"message"`
}

// Config contains batch pipeline configuration
type Config struct {
	// Format overrides detection from the input file name
	Format    Format
	Workers   int // 4
	BatchSize int // 1000
	// Field names the message field in jsonl records
	Field string // "message"
}

// DefaultConfig returns the pipeline defaults
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		BatchSize: 1000,
		Field:     "message",
	}
}

// Result summarises a batch run
type Result struct {
	Format   Format        `json:"format"`
	Records  int64         `json:"records"`
	Changed  int64         `json:"changed"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}
