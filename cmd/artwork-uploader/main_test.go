package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/config"
	"github.com/withObsrvr/artwork-uploader/internal/notify"
	"github.com/withObsrvr/artwork-uploader/internal/report"
	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

func TestFinishRunPublishesReportAndEvent(t *testing.T) {
	reportDir := t.TempDir()
	notifyDir := t.TempDir()

	cfg := config.Default()
	cfg.Report.Enabled = true
	cfg.Report.LocalDir = reportDir
	cfg.Notify = notify.Config{Enabled: true, BackupDir: notifyDir}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	result := upload.Result{
		RunID:      "run-42",
		AnyFailed:  true,
		Batches:    1,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Failures:   map[string][]string{"ftp://hostA/": {"/art/b.jpg"}},
	}
	rows := []report.OutcomeRow{
		{RunID: "run-42", Host: "ftp://hostA/", FilePath: "/art/a.jpg", Success: true, Attempts: 1, Bytes: 10},
		{RunID: "run-42", Host: "ftp://hostA/", FilePath: "/art/b.jpg", Attempts: 4, Error: "550"},
	}

	finishRun(context.Background(), cfg, result, rows)

	ref := storage.RunRef{RunID: "run-42", StartedAt: start}
	data, err := os.ReadFile(filepath.Join(reportDir, ref.ManifestPath("")))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	var manifest storage.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if h := manifest.Hosts["ftp://hostA/"]; h.Uploaded != 1 || h.Failed != 1 {
		t.Errorf("manifest host = %+v", h)
	}

	parquetData, err := os.ReadFile(filepath.Join(reportDir, ref.Path("")))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	decoded, err := report.DecodeParquet(parquetData)
	if err != nil || len(decoded) != 2 {
		t.Fatalf("decoded rows = %d, %v", len(decoded), err)
	}

	evtData, err := os.ReadFile(filepath.Join(notifyDir, "run_run-42.json"))
	if err != nil {
		t.Fatalf("event backup not written: %v", err)
	}
	var evt notify.RunEvent
	if err := json.Unmarshal(evtData, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if !strings.HasPrefix(evt.Report.URI, "file://") || evt.Report.Checksum != manifest.Report.Checksum {
		t.Errorf("event report = %+v", evt.Report)
	}
}

func TestPrintFailures(t *testing.T) {
	ft := upload.NewFailureTracker()
	ft.OnTransferOutcome(upload.TransferOutcome{FilePath: "/a/1.zip", Host: "hostA"})
	ft.OnTransferOutcome(upload.TransferOutcome{FilePath: "/a/2.jpg", Host: "hostB"})

	var buf bytes.Buffer
	printFailures(&buf, ft)

	want := "2 file(s) failed to upload:\n  hostA\n    /a/1.zip\n  hostB\n    /a/2.jpg\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	printFailures(&buf, upload.NewFailureTracker())
	if buf.Len() != 0 {
		t.Errorf("no failures should print nothing, got %q", buf.String())
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	for _, v := range []float64{0, 0.4, 12.5, 12.9, 100} {
		p.update(v)
	}
	p.done()

	if got := strings.Count(buf.String(), "progress:"); got != 3 {
		t.Errorf("printed %d updates, want 3: %q", got, buf.String())
	}
	if !strings.HasSuffix(buf.String(), "100%\n") {
		t.Errorf("output should end at 100%%: %q", buf.String())
	}
}
