// Package notify announces finished upload runs to a webhook and a local,
// hash-chained event log.
package notify

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

// Config configures run notifications.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	BackupDir string `yaml:"backup_dir"`
}

// Emitter publishes run events.
type Emitter interface {
	EmitRunFinished(ctx context.Context, evt *RunEvent) error
	Close() error
}

// NewEmitter picks an emitter for cfg. It never fails: misconfiguration
// degrades to file-only and then to a no-op emitter.
func NewEmitter(cfg Config) Emitter {
	if !cfg.Enabled {
		return noopEmitter{}
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg)
		if err != nil {
			log.Printf("[notify] failed to create HTTP emitter: %v, falling back to file-only", err)
			return fileOnly(cfg)
		}
		log.Printf("[notify] using HTTP emitter -> %s", cfg.Endpoint)
		return httpEmitter{emitter}
	}

	return fileOnly(cfg)
}

func fileOnly(cfg Config) Emitter {
	emitter, err := NewFileOnlyEmitter(cfg.BackupDir)
	if err != nil {
		log.Printf("[notify] failed to create file emitter: %v, using no-op", err)
		return noopEmitter{}
	}
	log.Printf("[notify] using file-only emitter -> %s", cfg.BackupDir)
	return fileEmitter{emitter}
}

// NewRunEvent builds the event for a finished run. manifest may be nil when
// no report was published.
func NewRunEvent(result upload.Result, manifest *storage.Manifest, reportURI string, producer ProducerInfo) *RunEvent {
	evt := &RunEvent{
		Run: RunInfo{
			ID:         result.RunID,
			StartedAt:  result.StartedAt.UTC(),
			FinishedAt: result.FinishedAt.UTC(),
			Batches:    result.Batches,
			AnyFailed:  result.AnyFailed,
			Cancelled:  result.Cancelled,
		},
		Hosts:    make(map[string]HostInfo),
		Report:   ReportInfo{URI: reportURI},
		Producer: producer,
	}

	if manifest != nil {
		evt.Report.Checksum = manifest.Report.Checksum
		for host, h := range manifest.Hosts {
			evt.Hosts[host] = HostInfo{Uploaded: h.Uploaded, Failed: h.Failed}
		}
	}

	for host, files := range result.Failures {
		info := evt.Hosts[host]
		info.FailedFiles = append([]string(nil), files...)
		sort.Strings(info.FailedFiles)
		if info.Failed < len(files) {
			info.Failed = len(files)
		}
		evt.Hosts[host] = info
	}

	return evt
}

func stamp(evt *RunEvent) {
	evt.Version = eventVersion
	evt.EventType = eventType
	evt.EventID = "run_evt_" + uuid.NewString()
	evt.Timestamp = time.Now().UTC()
}

type httpEmitter struct {
	emitter *HTTPEmitter
}

func (w httpEmitter) EmitRunFinished(ctx context.Context, evt *RunEvent) error {
	return w.emitter.Emit(ctx, evt)
}

func (w httpEmitter) Close() error {
	return w.emitter.Close()
}

type fileEmitter struct {
	emitter *FileOnlyEmitter
}

func (w fileEmitter) EmitRunFinished(_ context.Context, evt *RunEvent) error {
	return w.emitter.Emit(evt)
}

func (w fileEmitter) Close() error {
	return w.emitter.Close()
}

type noopEmitter struct{}

func (noopEmitter) EmitRunFinished(_ context.Context, _ *RunEvent) error { return nil }

func (noopEmitter) Close() error { return nil }
