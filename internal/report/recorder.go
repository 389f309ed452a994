package report

import (
	"sync"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

type recorded struct {
	outcome upload.TransferOutcome
	at      time.Time
}

// Recorder collects the transfer outcomes of a run. Record is meant to be
// installed as the Coordinator's OnOutcome hook.
type Recorder struct {
	mu      sync.Mutex
	entries []recorded
	now     func() time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record stores one outcome.
func (r *Recorder) Record(o upload.TransferOutcome) {
	r.mu.Lock()
	r.entries = append(r.entries, recorded{outcome: o, at: r.now()})
	r.mu.Unlock()
}

// Rows converts the recorded outcomes into table rows for runID.
func (r *Recorder) Rows(runID string) []OutcomeRow {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]OutcomeRow, 0, len(r.entries))
	for _, e := range r.entries {
		row := OutcomeRow{
			RunID:      runID,
			Host:       e.outcome.Host,
			FilePath:   e.outcome.FilePath,
			RemotePath: e.outcome.RemotePath,
			Success:    e.outcome.Success,
			Attempts:   int32(e.outcome.Attempts),
			Bytes:      e.outcome.Bytes,
			RecordedAt: e.at.UTC(),
		}
		if e.outcome.Err != nil {
			row.Error = e.outcome.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}
