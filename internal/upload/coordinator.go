package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/layout"
	"github.com/withObsrvr/artwork-uploader/internal/logging"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
)

// State is the Coordinator's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCancelRequested
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelRequested:
		return "cancel_requested"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Result summarises a completed run.
type Result struct {
	RunID      string
	AnyFailed  bool
	Cancelled  bool
	Batches    int
	StartedAt  time.Time
	FinishedAt time.Time
	Failures   map[string][]string // host -> failed files
}

// Duration returns how long the run took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Hooks observe a run. They are called from the Coordinator's event loop
// goroutine only, so a run's events arrive serially. Nil hooks are skipped.
type Hooks struct {
	OnStarted       func(runID string, batches int)
	OnProgress      func(percent float64)
	OnOutcome       func(TransferOutcome)
	OnBatchFinished func(host string, ok bool, finished, total int)
	OnFinished      func(Result)
}

// Options configure a Coordinator.
type Options struct {
	MaxParallelUploads int
	Dialer             Dialer
	Decoder            CredentialsDecoder
	Archiver           Archiver
	Layouts            *layout.Table
	Settings           Settings
	Failures           *FailureTracker
	Hooks              Hooks
}

// Run is a handle on one started upload run.
type Run struct {
	ID     string
	done   chan struct{}
	result Result
}

// Done is closed when the run has completed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run completes and returns its result.
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}

type eventKind int

const (
	eventProgress eventKind = iota
	eventOutcome
	eventDone
)

type workerEvent struct {
	kind    eventKind
	host    string
	prev    float64
	next    float64
	outcome TransferOutcome
	ok      bool
}

// jobState is owned by the event loop goroutine of one run.
type jobState struct {
	runID     string
	total     int
	finished  int
	overall   float64
	anyFailed bool
	startedAt time.Time
}

// Coordinator runs one upload at a time, spawning a Worker per batch and
// bounding concurrent transfers with a shared limiter.
type Coordinator struct {
	opts    Options
	limiter chan struct{}
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	progress float64
	cancel   context.CancelFunc
}

// NewCoordinator creates a Coordinator. MaxParallelUploads below 1 is
// treated as 1.
func NewCoordinator(opts Options) *Coordinator {
	if opts.MaxParallelUploads < 1 {
		opts.MaxParallelUploads = 1
	}
	if opts.Dialer == nil {
		opts.Dialer = NewFTPDialer()
	}
	if opts.Decoder == nil {
		opts.Decoder = plainDecoder{}
	}
	if opts.Layouts == nil {
		opts.Layouts = layout.DefaultTable()
	}
	if opts.Failures == nil {
		opts.Failures = NewFailureTracker()
	}

	return &Coordinator{
		opts:    opts,
		limiter: make(chan struct{}, opts.MaxParallelUploads),
		log:     logging.Component("coordinator"),
	}
}

// Failures returns the tracker fed by this Coordinator.
func (c *Coordinator) Failures() *FailureTracker {
	return c.opts.Failures
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the overall progress of the current or last run.
func (c *Coordinator) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// UploadArtworks builds batches and starts a run. It returns
// ErrNothingToUpload when no destination is usable.
func (c *Coordinator) UploadArtworks(ctx context.Context, artworks []Artwork, destinations []Destination) (*Run, error) {
	buildOpts := []BuildOption{WithLayouts(c.opts.Layouts)}
	if c.opts.Archiver != nil {
		buildOpts = append(buildOpts, WithArchiver(c.opts.Archiver))
	}

	batches := BuildBatches(artworks, destinations, c.opts.Decoder, c.opts.Settings, buildOpts...)

	if len(batches) == 0 {
		c.log.Warn("nothing to upload", "artworks", len(artworks), "destinations", len(destinations))
		return nil, ErrNothingToUpload
	}

	return c.Start(ctx, batches)
}

// Start runs batches. Only one run may be active at a time.
func (c *Coordinator) Start(ctx context.Context, batches []*Batch) (*Run, error) {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateCancelRequested {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	if len(batches) == 0 {
		c.mu.Unlock()
		return nil, ErrNothingToUpload
	}

	runID := logging.GenerateRunID()
	runCtx, cancel := context.WithCancel(logging.WithRunID(ctx, runID))
	c.state = StateRunning
	c.progress = 0
	c.cancel = cancel
	c.mu.Unlock()

	if c.opts.Failures != nil {
		c.opts.Failures.Reset()
	}
	metrics.Get().SetOverallProgress(0)

	js := &jobState{
		runID:     runID,
		total:     len(batches),
		startedAt: time.Now(),
	}
	run := &Run{ID: runID, done: make(chan struct{})}

	go c.loop(runCtx, cancel, run, js, batches)
	return run, nil
}

// CancelUpload asks the running run to stop. It has no effect unless a run
// is Running.
func (c *Coordinator) CancelUpload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	c.state = StateCancelRequested
	c.cancel()
	c.log.Info("upload cancel requested")
}

func (c *Coordinator) loop(ctx context.Context, cancel context.CancelFunc, run *Run, js *jobState, batches []*Batch) {
	defer cancel()

	log := logging.RunLogger(js.runID, js.total)
	log.Info("upload run started", "max_parallel", cap(c.limiter))
	c.hookStarted(js.runID, js.total)

	events := make(chan workerEvent)
	for i, b := range batches {
		w := NewWorker(i+1, b, c.opts.Dialer)
		go w.Process(ctx, c.limiter, WorkerEvents{
			Progress: func(host string, prev, next float64) {
				events <- workerEvent{kind: eventProgress, host: host, prev: prev, next: next}
			},
			Outcome: func(o TransferOutcome) {
				events <- workerEvent{kind: eventOutcome, host: o.Host, outcome: o}
			},
			Done: func(host string, ok bool) {
				events <- workerEvent{kind: eventDone, host: host, ok: ok}
			},
		})
	}

	for js.finished < js.total {
		ev := <-events
		switch ev.kind {
		case eventProgress:
			js.overall += (ev.next - ev.prev) / float64(js.total)
			if js.overall > 100 {
				js.overall = 100
			}
			c.setProgress(js.overall)
			c.hookProgress(js.overall)

		case eventOutcome:
			if c.opts.Failures != nil {
				c.opts.Failures.OnTransferOutcome(ev.outcome)
			}
			if c.opts.Hooks.OnOutcome != nil {
				c.opts.Hooks.OnOutcome(ev.outcome)
			}

		case eventDone:
			js.finished++
			js.anyFailed = js.anyFailed || !ev.ok
			log.Debug("batch done", "host", ev.host, "success", ev.ok, "finished", js.finished)
			if c.opts.Hooks.OnBatchFinished != nil {
				c.opts.Hooks.OnBatchFinished(ev.host, ev.ok, js.finished, js.total)
			}
		}
	}

	// Snapshot while the run still holds the tracker; once the state is
	// Completed a new run may Reset it.
	var failures map[string][]string
	if c.opts.Failures != nil {
		failures = c.opts.Failures.Snapshot()
	}

	c.mu.Lock()
	cancelled := c.state == StateCancelRequested
	c.state = StateCompleted
	c.progress = 100
	c.cancel = nil
	c.mu.Unlock()

	result := Result{
		RunID:      js.runID,
		AnyFailed:  js.anyFailed,
		Cancelled:  cancelled,
		Batches:    js.total,
		StartedAt:  js.startedAt,
		FinishedAt: time.Now(),
		Failures:   failures,
	}
	run.result = result

	m := metrics.Get()
	m.RecordRun(result.AnyFailed, result.Duration().Seconds())
	m.SetOverallProgress(100)

	log.Info("upload run finished",
		"any_failed", result.AnyFailed,
		"cancelled", result.Cancelled,
		"duration", result.Duration(),
	)

	if c.opts.Hooks.OnFinished != nil {
		c.opts.Hooks.OnFinished(result)
	}
	c.hookProgress(100)
	close(run.done)
}

func (c *Coordinator) setProgress(p float64) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
	metrics.Get().SetOverallProgress(p)
}

func (c *Coordinator) hookStarted(runID string, batches int) {
	if c.opts.Hooks.OnStarted != nil {
		c.opts.Hooks.OnStarted(runID, batches)
	}
}

func (c *Coordinator) hookProgress(p float64) {
	if c.opts.Hooks.OnProgress != nil {
		c.opts.Hooks.OnProgress(p)
	}
}

// plainDecoder treats stored passwords as plain text.
type plainDecoder struct{}

func (plainDecoder) Decode(encoded string) (string, error) {
	return encoded, nil
}
