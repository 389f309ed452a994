package upload

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/withObsrvr/artwork-uploader/internal/logging"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
)

// WorkerEvents receives the events of one Worker, tagged with its host.
// Nil fields are ignored.
type WorkerEvents struct {
	Progress func(host string, prev, next float64)
	Outcome  func(TransferOutcome)
	Done     func(host string, ok bool)
}

// Worker runs one batch's Transport while holding a limiter slot.
type Worker struct {
	ID     int
	batch  *Batch
	dialer Dialer
	log    *slog.Logger
}

// NewWorker creates a worker for batch.
func NewWorker(id int, batch *Batch, dialer Dialer) *Worker {
	return &Worker{
		ID:     id,
		batch:  batch,
		dialer: dialer,
		log:    logging.WorkerLogger(id, batch.Host()),
	}
}

// Process acquires a slot from limiter, runs the Transport and releases the
// slot on every exit path. Done is signalled exactly once, also when ctx is
// cancelled before a slot is acquired or the Transport panics.
func (w *Worker) Process(ctx context.Context, limiter chan struct{}, events WorkerEvents) (ok bool) {
	host := w.batch.Host()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("transport panic", "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
		if events.Done != nil {
			events.Done(host, ok)
		}
	}()

	m := metrics.Get()
	m.AddWaitingWorkers(1)
	select {
	case limiter <- struct{}{}:
		m.AddWaitingWorkers(-1)
	case <-ctx.Done():
		m.AddWaitingWorkers(-1)
		w.log.Info("cancelled before acquiring upload slot")
		return false
	}
	defer func() { <-limiter }()

	m.AddActiveTransfers(1)
	defer m.AddActiveTransfers(-1)

	w.log.Debug("upload slot acquired", "files", w.batch.Len())

	t := NewTransport(w.batch, w.dialer)
	ok = t.Run(ctx, TransportEvents{
		Progress: func(prev, next float64) {
			if events.Progress != nil {
				events.Progress(host, prev, next)
			}
		},
		Outcome: events.Outcome,
	})

	w.log.Info("batch finished", "success", ok)
	return ok
}
