package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

func sampleRun(t *testing.T) (upload.Result, *Recorder) {
	t.Helper()

	rec := NewRecorder()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	rec.Record(upload.TransferOutcome{FilePath: "/art/one.jpg", Host: "hostA", RemotePath: "one.jpg", Success: true, Attempts: 1, Bytes: 100})
	rec.Record(upload.TransferOutcome{FilePath: "/art/two.zip", Host: "hostA", RemotePath: "two.zip", Attempts: 4, Err: errors.New("550 rejected")})
	rec.Record(upload.TransferOutcome{FilePath: "/art/one.jpg", Host: "hostB", RemotePath: "one.jpg", Success: true, Attempts: 2, Bytes: 100})

	result := upload.Result{
		RunID:      "run-1",
		AnyFailed:  true,
		Batches:    2,
		StartedAt:  fixed.Add(-time.Minute),
		FinishedAt: fixed,
		Failures:   map[string][]string{"hostA": {"/art/two.zip"}},
	}
	return result, rec
}

func TestRecorderRows(t *testing.T) {
	_, rec := sampleRun(t)

	rows := rec.Rows("run-1")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Error != "550 rejected" || rows[1].Success || rows[1].Attempts != 4 {
		t.Errorf("failed row = %+v", rows[1])
	}
	if rows[0].RunID != "run-1" || rows[0].Error != "" {
		t.Errorf("success row = %+v", rows[0])
	}
}

func TestBuildRoundTrip(t *testing.T) {
	result, rec := sampleRun(t)

	for _, compression := range []string{"zstd", "snappy", "none"} {
		cfg := DefaultConfig()
		cfg.Compression = compression

		out, err := Build(result, rec.Rows(result.RunID), cfg)
		if err != nil {
			t.Fatalf("Build(%s): %v", compression, err)
		}

		rows, err := DecodeParquet(out.Parquet)
		if err != nil {
			t.Fatalf("DecodeParquet(%s): %v", compression, err)
		}
		if len(rows) != 3 {
			t.Fatalf("decoded %d rows, want 3", len(rows))
		}
		if rows[1].FilePath != "/art/two.zip" || rows[1].Success {
			t.Errorf("decoded failed row = %+v", rows[1])
		}
		if !rows[0].RecordedAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("RecordedAt = %v", rows[0].RecordedAt)
		}

		m := out.Manifest
		if !VerifyChecksum(out.Parquet, m.Report.Checksum) {
			t.Error("manifest checksum does not match parquet bytes")
		}
		if m.Report.RowCount != 3 || m.Report.ByteSize != int64(len(out.Parquet)) {
			t.Errorf("manifest report = %+v", m.Report)
		}
		a := m.Hosts["hostA"]
		if a.Uploaded != 1 || a.Failed != 1 || a.Bytes != 100 || len(a.FailedFiles) != 1 {
			t.Errorf("hostA summary = %+v", a)
		}
		if !m.Run.AnyFailed || m.Run.ID != "run-1" {
			t.Errorf("manifest run = %+v", m.Run)
		}
	}
}

func TestPublish(t *testing.T) {
	result, rec := sampleRun(t)
	out, err := Build(result, rec.Rows(result.RunID), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "reports/")
	if err != nil {
		t.Fatal(err)
	}

	if err := Publish(context.Background(), store, out); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, key := range []string{out.Ref.Path("reports/"), out.Ref.ManifestPath("reports/")} {
		if _, err := os.Stat(filepath.Join(dir, key)); err != nil {
			t.Errorf("missing %s: %v", key, err)
		}
	}

	hosts := SortedHosts(out.Manifest)
	if len(hosts) != 2 || hosts[0] != "hostA" || hosts[1] != "hostB" {
		t.Errorf("SortedHosts = %v", hosts)
	}
}
