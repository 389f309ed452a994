package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testRef() RunRef {
	return RunRef{
		RunID:     "run-123",
		StartedAt: time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC),
	}
}

func testManifest(data []byte) *Manifest {
	return &Manifest{
		Run: RunInfo{
			ID:        "run-123",
			Batches:   2,
			AnyFailed: true,
		},
		Hosts: map[string]HostInfo{
			"ftp://upload.alamy.com/": {
				Uploaded:    2,
				Failed:      1,
				Bytes:       2048,
				FailedFiles: []string{"/art/two.zip"},
			},
		},
		Report: FileInfo{
			File:     "outcomes.parquet",
			Checksum: "sha256:abc123",
			RowCount: 3,
			ByteSize: int64(len(data)),
		},
		Producer: ProducerInfo{
			Name:    "artwork-uploader",
			Version: "test",
		},
		CreatedAt: time.Now(),
	}
}

func TestRunRefPaths(t *testing.T) {
	ref := testRef()

	if got := ref.Path("reports/"); got != "reports/runs/date=2026-03-14/run=run-123/outcomes.parquet" {
		t.Errorf("Path = %q", got)
	}
	if got := ref.ManifestPath(""); got != "runs/date=2026-03-14/run=run-123/_manifest.json" {
		t.Errorf("ManifestPath = %q", got)
	}

	// Dates are partitioned in UTC.
	local := RunRef{RunID: "r", StartedAt: time.Date(2026, 3, 15, 1, 0, 0, 0, time.FixedZone("CET", 3600*3))}
	if !strings.Contains(local.DirPath(""), "date=2026-03-14") {
		t.Errorf("DirPath should use the UTC date, got %q", local.DirPath(""))
	}
}

func TestLocalStoreWrite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "report-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := NewLocalStore(tmpDir, "reports/")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	ctx := context.Background()
	ref := testRef()
	data := []byte("fake parquet data for testing")

	exists, err := store.Exists(ctx, ref)
	if err != nil || exists {
		t.Fatalf("Exists before write = %v, %v", exists, err)
	}

	if err := store.WriteReport(ctx, ref, data); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if err := store.WriteManifest(ctx, ref, testManifest(data)); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	exists, err = store.Exists(ctx, ref)
	if err != nil || !exists {
		t.Errorf("Exists after write = %v, %v", exists, err)
	}

	// Verify file contents
	reportPath := filepath.Join(tmpDir, ref.Path("reports/"))
	got, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(got) != string(data) {
		t.Error("report content mismatch")
	}

	// Verify no temp files left behind
	if _, err := os.Stat(reportPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be removed after write")
	}

	raw, err := os.ReadFile(filepath.Join(tmpDir, ref.ManifestPath("reports/")))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var decoded Manifest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if decoded.Hosts["ftp://upload.alamy.com/"].Failed != 1 {
		t.Errorf("decoded manifest hosts = %+v", decoded.Hosts)
	}

	if uri := store.URI("x/y"); uri != "file://"+filepath.Join(tmpDir, "x/y") {
		t.Errorf("URI = %q", uri)
	}
}

func TestNewReportStoreValidation(t *testing.T) {
	ctx := context.Background()

	tests := []Config{
		{Backend: "local"},
		{Backend: "file"},
		{Backend: "gcs"},
		{Backend: "s3"},
		{Backend: "ftp", LocalDir: "/tmp"},
	}
	for _, cfg := range tests {
		if _, err := NewReportStore(ctx, cfg); err == nil {
			t.Errorf("NewReportStore(%+v) should fail", cfg)
		}
	}

	store, err := NewReportStore(ctx, Config{LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("default backend should be local: %v", err)
	}
	if _, ok := store.(*LocalStore); !ok {
		t.Errorf("expected *LocalStore, got %T", store)
	}
}
