package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

func sampleResult() upload.Result {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return upload.Result{
		RunID:      "run-1",
		AnyFailed:  true,
		Batches:    2,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Failures: map[string][]string{
			"hostB": {"/art/b1.jpg"},
			"hostA": {"/art/a1.zip", "/art/a2.jpg"},
		},
	}
}

func TestNewRunRecord(t *testing.T) {
	manifest := &storage.Manifest{
		Hosts: map[string]storage.HostInfo{
			"hostA": {Uploaded: 1, Failed: 2, Bytes: 100},
			"hostB": {Uploaded: 4, Failed: 1, Bytes: 400},
		},
	}

	rec := NewRunRecord(sampleResult(), manifest, "file:///reports/x", "v1.2.3")

	if rec.FilesUploaded != 5 || rec.FilesFailed != 3 || rec.BytesUploaded != 500 {
		t.Errorf("totals = %d/%d/%d", rec.FilesUploaded, rec.FilesFailed, rec.BytesUploaded)
	}
	if rec.ReportURI != "file:///reports/x" || rec.ProducerVersion != "v1.2.3" {
		t.Errorf("unexpected record: %+v", rec)
	}

	want := []FailureRecord{
		{Host: "hostA", Position: 0, FilePath: "/art/a1.zip"},
		{Host: "hostA", Position: 1, FilePath: "/art/a2.jpg"},
		{Host: "hostB", Position: 0, FilePath: "/art/b1.jpg"},
	}
	if len(rec.Failures) != len(want) {
		t.Fatalf("failures = %+v", rec.Failures)
	}
	for i := range want {
		if rec.Failures[i] != want[i] {
			t.Errorf("failure %d = %+v, want %+v", i, rec.Failures[i], want[i])
		}
	}

	noManifest := NewRunRecord(sampleResult(), nil, "", "dev")
	if noManifest.FilesUploaded != 0 || len(noManifest.Failures) != 3 {
		t.Errorf("record without manifest = %+v", noManifest)
	}
}

func TestNewWriterWithoutDSN(t *testing.T) {
	w, err := NewWriter(Config{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.RecordRun(context.Background(), RunRecord{RunID: "x"}); err != nil {
		t.Errorf("noop RecordRun: %v", err)
	}
	runs, err := w.RecentRuns(context.Background(), 5)
	if err != nil || len(runs) != 0 {
		t.Errorf("noop RecentRuns = %v, %v", runs, err)
	}
}

func TestPostgresWriter(t *testing.T) {
	dsn := os.Getenv("HISTORY_TEST_DSN")
	if dsn == "" {
		t.Skip("HISTORY_TEST_DSN not set")
	}

	w, err := NewPostgresWriter(Config{PostgresDSN: dsn})
	if err != nil {
		t.Fatalf("NewPostgresWriter: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	rec := NewRunRecord(sampleResult(), nil, "", "test")
	rec.RunID = "test-" + time.Now().Format("20060102150405.000000")

	if err := w.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	// Recording twice replaces failures instead of conflicting.
	if err := w.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun again: %v", err)
	}

	runs, err := w.RecentRuns(ctx, 50)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	found := false
	for _, r := range runs {
		if r.RunID == rec.RunID {
			found = true
			if !r.AnyFailed || r.Batches != 2 {
				t.Errorf("stored run = %+v", r)
			}
		}
	}
	if !found {
		t.Errorf("run %s not returned by RecentRuns", rec.RunID)
	}
}
