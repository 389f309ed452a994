package main

import (
	"context"
	"log"

	"github.com/withObsrvr/artwork-uploader/internal/config"
	"github.com/withObsrvr/artwork-uploader/internal/history"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
	"github.com/withObsrvr/artwork-uploader/internal/notify"
	"github.com/withObsrvr/artwork-uploader/internal/report"
	"github.com/withObsrvr/artwork-uploader/internal/storage"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

// finishRun publishes the run report, records the run in the history catalog
// and emits the run-finished event. Each step is best effort: failures are
// logged and counted but never change the run's result.
func finishRun(ctx context.Context, cfg config.Config, result upload.Result, rows []report.OutcomeRow) {
	var (
		manifest  *storage.Manifest
		reportURI string
	)

	if cfg.Report.Enabled {
		out, uri, err := publishReport(ctx, cfg, result, rows)
		if err != nil {
			log.Printf("[main] report failed: %v", err)
			metrics.Get().IncReportErrors("report")
		} else {
			manifest, reportURI = out.Manifest, uri
		}
	}

	writer, err := history.NewWriter(cfg.History)
	if err != nil {
		log.Printf("[main] history unavailable: %v", err)
		metrics.Get().IncReportErrors("history")
	} else {
		rec := history.NewRunRecord(result, manifest, reportURI, Version)
		if err := writer.RecordRun(ctx, rec); err != nil {
			log.Printf("[main] history failed: %v", err)
			metrics.Get().IncReportErrors("history")
		}
		writer.Close()
	}

	emitter := notify.NewEmitter(cfg.Notify)
	defer emitter.Close()

	evt := notify.NewRunEvent(result, manifest, reportURI, notify.ProducerInfo{
		Name:    "artwork-uploader",
		Version: Version,
		GitSHA:  GitSHA,
	})
	if err := emitter.EmitRunFinished(ctx, evt); err != nil {
		log.Printf("[main] notify failed: %v", err)
		metrics.Get().IncReportErrors("notify")
	}
}

func publishReport(ctx context.Context, cfg config.Config, result upload.Result, rows []report.OutcomeRow) (*report.Output, string, error) {
	rcfg := report.DefaultConfig()
	if cfg.Report.Compression != "" {
		rcfg.Compression = cfg.Report.Compression
	}
	rcfg.Version = Version
	rcfg.GitSHA = GitSHA

	out, err := report.Build(result, rows, rcfg)
	if err != nil {
		return nil, "", err
	}

	store, err := storage.NewReportStore(ctx, cfg.Report.Config)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	if err := report.Publish(ctx, store, out); err != nil {
		return nil, "", err
	}
	return out, store.ReportURI(out.Ref), nil
}
