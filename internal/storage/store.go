package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RunRef describes where one upload run's report lives.
type RunRef struct {
	RunID     string
	StartedAt time.Time
}

// DirPath returns the directory path for this run.
func (r RunRef) DirPath(prefix string) string {
	return fmt.Sprintf("%sruns/date=%s/run=%s",
		prefix, r.StartedAt.UTC().Format("2006-01-02"), r.RunID)
}

// Path returns the storage path for this run's outcomes parquet file.
func (r RunRef) Path(prefix string) string {
	return r.DirPath(prefix) + "/outcomes.parquet"
}

// ManifestPath returns the storage path for this run's manifest.
func (r RunRef) ManifestPath(prefix string) string {
	return r.DirPath(prefix) + "/_manifest.json"
}

// Manifest describes the contents of a run report directory.
type Manifest struct {
	Run       RunInfo             `json:"run"`
	Hosts     map[string]HostInfo `json:"hosts"`
	Report    FileInfo            `json:"report"`
	Producer  ProducerInfo        `json:"producer"`
	CreatedAt time.Time           `json:"created_at"`
}

// RunInfo describes the run.
type RunInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Batches    int       `json:"batches"`
	AnyFailed  bool      `json:"any_failed"`
	Cancelled  bool      `json:"cancelled"`
}

// HostInfo summarises the outcomes for one host.
type HostInfo struct {
	Uploaded    int      `json:"uploaded"`
	Failed      int      `json:"failed"`
	Bytes       int64    `json:"bytes"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

// FileInfo describes the outcomes file.
type FileInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the report.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ReportStore abstracts writing run reports to storage.
type ReportStore interface {
	// WriteReport writes the outcomes parquet bytes.
	WriteReport(ctx context.Context, ref RunRef, parquetBytes []byte) error

	// WriteManifest writes the run manifest.
	WriteManifest(ctx context.Context, ref RunRef, manifest *Manifest) error

	// Exists checks if a run report already exists.
	Exists(ctx context.Context, ref RunRef) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// ReportURI returns the canonical URI of a run's outcomes file.
	ReportURI(ref RunRef) string

	// Close releases any resources.
	Close() error
}

// Config configures the report storage backend.
type Config struct {
	Backend string `yaml:"backend"` // "local" | "file" | "gcs" | "s3"

	// Local filesystem ("local" writes directly, "file" goes through fileblob)
	LocalDir string `yaml:"local_dir"`

	// GCS or S3 bucket name
	Bucket string `yaml:"bucket"`

	// S3 (also works for B2, R2, MinIO)
	Endpoint string `yaml:"endpoint"` // custom endpoint for B2/MinIO/R2
	Region   string `yaml:"region"`

	// Common
	Prefix string `yaml:"prefix"` // "reports/" (path prefix within bucket or local dir)
}

// NewReportStore creates a storage backend based on configuration.
func NewReportStore(ctx context.Context, cfg Config) (ReportStore, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("local_dir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "file":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("local_dir required for file backend")
		}
		return NewFileBlobStore(ctx, cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs backend")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for s3 backend")
		}
		return NewS3Store(ctx, cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
