package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const (
	eventVersion = "1.0"
	eventType    = "upload_run_finished"
)

// RunEvent is the payload sent when an upload run finishes.
type RunEvent struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Run      RunInfo             `json:"run"`
	Hosts    map[string]HostInfo `json:"hosts"`
	Report   ReportInfo          `json:"report"`
	Producer ProducerInfo        `json:"producer"`
	Chain    ChainInfo           `json:"chain"`
}

// RunInfo identifies the run.
type RunInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Batches    int       `json:"batches"`
	AnyFailed  bool      `json:"any_failed"`
	Cancelled  bool      `json:"cancelled"`
}

// HostInfo summarises one destination.
type HostInfo struct {
	Uploaded    int      `json:"uploaded"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

// ReportInfo points at the published outcomes report, if any.
type ReportInfo struct {
	URI      string `json:"uri,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// ProducerInfo identifies the software that produced the event.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo links events into a tamper-evident log.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// SetChainHashes sets the previous hash and computes this event's hash.
func (e *RunEvent) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = ComputeEventHash(e)
}

// ComputeEventHash hashes the canonical JSON of evt with event_hash cleared.
func ComputeEventHash(evt *RunEvent) string {
	c := *evt
	c.Chain.EventHash = ""

	canonical, err := json.Marshal(c)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}
