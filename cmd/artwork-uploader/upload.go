package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/artwork-uploader/internal/archive"
	"github.com/withObsrvr/artwork-uploader/internal/config"
	"github.com/withObsrvr/artwork-uploader/internal/logging"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
	"github.com/withObsrvr/artwork-uploader/internal/report"
	"github.com/withObsrvr/artwork-uploader/internal/secrets"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

var (
	uploadTo           []string
	uploadAutoVectors  bool
	uploadKeepArchives bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload [flags] <file>...",
	Short: "Upload artwork files to the configured destinations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runUpload(cmd.Context(), cfg, args)
	},
}

func init() {
	uploadCmd.Flags().StringSliceVar(&uploadTo, "to", nil, "destination titles to upload to (default all)")
	uploadCmd.Flags().BoolVar(&uploadAutoVectors, "auto-vectors", false, "attach sibling .eps/.ai files to raster images")
	uploadCmd.Flags().BoolVar(&uploadKeepArchives, "keep-archives", false, "keep zip archives created for this run")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	logging.Setup(cfg.Log)

	if cfg.Metrics.Enabled {
		metrics.Init("artwork_uploader")
		go func() {
			log.Printf("[metrics] serving on %s", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Printf("[metrics] server stopped: %v", err)
			}
		}()
	}

	return cfg, nil
}

func runUpload(ctx context.Context, cfg config.Config, paths []string) error {
	log.Printf("[main] artwork-uploader %s (%s)", Version, GitSHA)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	destinations, err := cfg.SelectedDestinations(uploadTo)
	if err != nil {
		return err
	}

	layouts, err := cfg.LayoutTable()
	if err != nil {
		return err
	}

	artworks := upload.DiscoverArtworks(paths, uploadAutoVectors || cfg.Upload.AutoVectors)
	log.Printf("[main] %d artworks, %d destinations", len(artworks), len(destinations))

	zipper := archive.NewZipper()
	created, err := upload.PrepareArchives(artworks, destinations, zipper)
	if err != nil {
		// Missing archives fail their transfers; the rest still go out.
		log.Printf("[main] warning: %v", err)
	}
	if !uploadKeepArchives {
		defer removeArchives(created)
	}

	decoder := secrets.NewDecoder()
	decoder.Strict = cfg.Upload.StrictSecrets

	dialer := upload.NewFTPDialer()
	if cfg.Upload.VerboseLogging {
		dialer.Debug = os.Stderr
	}

	recorder := report.NewRecorder()
	progress := newProgressPrinter(os.Stderr)

	coord := upload.NewCoordinator(upload.Options{
		MaxParallelUploads: cfg.Upload.MaxParallelUploads,
		Dialer:             dialer,
		Decoder:            decoder,
		Archiver:           zipper,
		Layouts:            layouts,
		Settings:           cfg.Settings(),
		Hooks: upload.Hooks{
			OnStarted: func(runID string, batches int) {
				log.Printf("[main] run %s started with %d batches", runID, batches)
			},
			OnProgress: progress.update,
			OnOutcome:  recorder.Record,
			OnBatchFinished: func(host string, ok bool, finished, total int) {
				log.Printf("[main] %s finished ok=%t (%d/%d)", host, ok, finished, total)
			},
		},
	})

	// First signal cancels the run gracefully; a second one aborts.
	go func() {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			log.Printf("[shutdown] received signal: %v, cancelling upload", sig)
			coord.CancelUpload()
		case <-ctx.Done():
			return
		}

		select {
		case <-ch:
			log.Printf("[shutdown] second signal, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	run, err := coord.UploadArtworks(ctx, artworks, destinations)
	if err != nil {
		return fmt.Errorf("start upload: %w", err)
	}

	result := run.Wait()
	progress.done()

	printFailures(os.Stdout, coord.Failures())

	// Publishing must not depend on the cancelled run context.
	finishRun(context.WithoutCancel(ctx), cfg, result, recorder.Rows(result.RunID))

	switch {
	case result.Cancelled:
		log.Printf("[main] upload cancelled after %s", result.Duration())
	case result.AnyFailed:
		log.Printf("[main] upload finished with failures in %s", result.Duration())
	default:
		log.Printf("[main] upload finished in %s", result.Duration())
	}

	if result.AnyFailed {
		return errRunFailed
	}
	return nil
}

func removeArchives(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("[main] warning: remove %s: %v", p, err)
		}
	}
}

func printFailures(w io.Writer, ft *upload.FailureTracker) {
	hosts := ft.Hosts()
	if len(hosts) == 0 {
		return
	}

	fmt.Fprintf(w, "%d file(s) failed to upload:\n", ft.FailedCount())
	for _, host := range hosts {
		fmt.Fprintf(w, "  %s\n", host)
		for _, f := range ft.FailedFiles(host) {
			fmt.Fprintf(w, "    %s\n", f)
		}
	}
}

// progressPrinter writes whole-percent progress updates on one line.
type progressPrinter struct {
	w    io.Writer
	last int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: -1}
}

func (p *progressPrinter) update(percent float64) {
	pct := int(percent)
	if pct == p.last {
		return
	}
	p.last = pct
	fmt.Fprintf(p.w, "\rprogress: %3d%%", pct)
}

func (p *progressPrinter) done() {
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}
