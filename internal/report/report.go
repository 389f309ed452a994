// Package report turns a completed upload run into a Parquet outcomes table
// plus a JSON manifest and publishes both to a report store.
package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

// Output is a built run report.
type Output struct {
	Ref      storage.RunRef
	Parquet  []byte
	Manifest *storage.Manifest
}

// Build encodes rows as Parquet and summarises them in a manifest.
func Build(result upload.Result, rows []OutcomeRow, cfg Config) (*Output, error) {
	data, err := EncodeParquet(rows, cfg.Compression)
	if err != nil {
		return nil, err
	}

	hosts := make(map[string]storage.HostInfo)
	for _, row := range rows {
		h := hosts[row.Host]
		if row.Success {
			h.Uploaded++
			h.Bytes += row.Bytes
		} else {
			h.Failed++
		}
		hosts[row.Host] = h
	}
	for host, files := range result.Failures {
		h := hosts[host]
		h.FailedFiles = append([]string(nil), files...)
		hosts[host] = h
	}

	manifest := &storage.Manifest{
		Run: storage.RunInfo{
			ID:         result.RunID,
			StartedAt:  result.StartedAt.UTC(),
			FinishedAt: result.FinishedAt.UTC(),
			Batches:    result.Batches,
			AnyFailed:  result.AnyFailed,
			Cancelled:  result.Cancelled,
		},
		Hosts: hosts,
		Report: storage.FileInfo{
			File:     "outcomes.parquet",
			Checksum: ComputeChecksum(data),
			RowCount: int64(len(rows)),
			ByteSize: int64(len(data)),
		},
		Producer: storage.ProducerInfo{
			Name:    cfg.Producer,
			Version: cfg.Version,
			GitSHA:  cfg.GitSHA,
		},
		CreatedAt: time.Now().UTC(),
	}

	return &Output{
		Ref:      storage.RunRef{RunID: result.RunID, StartedAt: result.StartedAt},
		Parquet:  data,
		Manifest: manifest,
	}, nil
}

// EncodeParquet writes rows into an in-memory Parquet file.
func EncodeParquet(rows []OutcomeRow, compression string) ([]byte, error) {
	var opts []parquet.WriterOption
	if codec := codecFor(compression); codec != nil {
		opts = append(opts, parquet.Compression(codec))
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[OutcomeRow](&buf, opts...)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads rows back from a Parquet file.
func DecodeParquet(data []byte) ([]OutcomeRow, error) {
	rows, err := parquet.Read[OutcomeRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows, nil
}

func codecFor(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "zstd":
		return &parquet.Zstd
	case "gzip":
		return &parquet.Gzip
	default:
		return nil
	}
}

// Publish writes the report then its manifest. The manifest is written last
// so its presence marks a complete report.
func Publish(ctx context.Context, store storage.ReportStore, out *Output) error {
	if err := store.WriteReport(ctx, out.Ref, out.Parquet); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := store.WriteManifest(ctx, out.Ref, out.Manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	slog.Info("run report published",
		"component", "report",
		"run_id", out.Ref.RunID,
		"table", OutcomeRow{}.TableName(),
		"uri", store.ReportURI(out.Ref),
		"rows", out.Manifest.Report.RowCount,
	)
	return nil
}

// SortedHosts returns the manifest hosts in name order.
func SortedHosts(m *storage.Manifest) []string {
	hosts := make([]string, 0, len(m.Hosts))
	for h := range m.Hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
