// Package history records completed upload runs in a catalog.
package history

import (
	"context"
	"sort"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

// Config configures the history catalog.
type Config struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Writer persists run records.
type Writer interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// RunRecord is one completed run.
type RunRecord struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Batches         int
	AnyFailed       bool
	Cancelled       bool
	FilesUploaded   int
	FilesFailed     int
	BytesUploaded   int64
	ReportURI       string
	ProducerVersion string
	Failures        []FailureRecord
}

// FailureRecord is one file that failed for one host.
type FailureRecord struct {
	Host     string
	Position int
	FilePath string
}

// NewRunRecord builds a record from a run result and, when available, its
// report manifest. Failures are ordered by host, then failure order.
func NewRunRecord(result upload.Result, manifest *storage.Manifest, reportURI, version string) RunRecord {
	rec := RunRecord{
		RunID:           result.RunID,
		StartedAt:       result.StartedAt.UTC(),
		FinishedAt:      result.FinishedAt.UTC(),
		Batches:         result.Batches,
		AnyFailed:       result.AnyFailed,
		Cancelled:       result.Cancelled,
		ReportURI:       reportURI,
		ProducerVersion: version,
	}

	if manifest != nil {
		for _, h := range manifest.Hosts {
			rec.FilesUploaded += h.Uploaded
			rec.FilesFailed += h.Failed
			rec.BytesUploaded += h.Bytes
		}
	}

	hosts := make([]string, 0, len(result.Failures))
	for host := range result.Failures {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	for _, host := range hosts {
		for i, file := range result.Failures[host] {
			rec.Failures = append(rec.Failures, FailureRecord{Host: host, Position: i, FilePath: file})
		}
	}

	return rec
}

// NewWriter returns a PostgreSQL writer when a DSN is configured and a no-op
// writer otherwise.
func NewWriter(cfg Config) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(cfg)
}

type noopWriter struct{}

func (noopWriter) RecordRun(_ context.Context, _ RunRecord) error { return nil }

func (noopWriter) RecentRuns(_ context.Context, _ int) ([]RunRecord, error) { return nil, nil }

func (noopWriter) Close() error { return nil }
