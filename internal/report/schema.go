package report

import (
	"time"
)

// OutcomeRow is one file transfer in the outcomes table.
type OutcomeRow struct {
	RunID      string    `parquet:"run_id"`
	Host       string    `parquet:"host"`
	FilePath   string    `parquet:"file_path"`
	RemotePath string    `parquet:"remote_path"`
	Success    bool      `parquet:"success"`
	Attempts   int32     `parquet:"attempts"`
	Bytes      int64     `parquet:"bytes"`
	Error      string    `parquet:"error"`
	RecordedAt time.Time `parquet:"recorded_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (OutcomeRow) TableName() string {
	return "upload_outcomes"
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

// Config configures report generation.
type Config struct {
	Compression string // "snappy" | "zstd" | "none"
	Producer    string
	Version     string
	GitSHA      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Compression: "zstd",
		Producer:    "artwork-uploader",
		Version:     "dev",
	}
}
