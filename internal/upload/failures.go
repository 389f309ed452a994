package upload

import (
	"path/filepath"
	"strings"
	"sync"
)

// Vector companions uploaded next to their raster. Their failures are not
// tracked.
var companionFailureExts = map[string]bool{
	".eps": true,
	".ai":  true,
}

// FailureTracker records, per host, the files that failed to upload.
// It is safe for concurrent use.
type FailureTracker struct {
	mu        sync.Mutex
	byHost    map[string][]string
	hosts     []string
	count     int
	onChanged func(count int)
}

// NewFailureTracker creates an empty tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{byHost: make(map[string][]string)}
}

// OnChanged sets a callback invoked with the new failed count whenever it
// changes.
func (f *FailureTracker) OnChanged(fn func(count int)) {
	f.mu.Lock()
	f.onChanged = fn
	f.mu.Unlock()
}

// OnTransferOutcome records a failed outcome.
func (f *FailureTracker) OnTransferOutcome(o TransferOutcome) {
	if o.Success || isCompanion(o.FilePath) {
		return
	}

	f.mu.Lock()
	if _, ok := f.byHost[o.Host]; !ok {
		f.hosts = append(f.hosts, o.Host)
	}
	f.byHost[o.Host] = append(f.byHost[o.Host], o.FilePath)
	f.count++
	count, fn := f.count, f.onChanged
	f.mu.Unlock()

	if fn != nil {
		fn(count)
	}
}

// FailedFiles returns the failed files for host in failure order.
func (f *FailureTracker) FailedFiles(host string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	files := f.byHost[host]
	out := make([]string, len(files))
	copy(out, files)
	return out
}

// Hosts returns the hosts with at least one failure, in first-failure order.
func (f *FailureTracker) Hosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.hosts))
	copy(out, f.hosts)
	return out
}

// FailedCount returns the total number of failed files.
func (f *FailureTracker) FailedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Snapshot returns a copy of the ledger.
func (f *FailureTracker) Snapshot() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string][]string, len(f.byHost))
	for host, files := range f.byHost {
		cp := make([]string, len(files))
		copy(cp, files)
		out[host] = cp
	}
	return out
}

// Reset clears the ledger.
func (f *FailureTracker) Reset() {
	f.mu.Lock()
	hadFailures := f.count > 0
	f.byHost = make(map[string][]string)
	f.hosts = nil
	f.count = 0
	fn := f.onChanged
	f.mu.Unlock()

	if hadFailures && fn != nil {
		fn(0)
	}
}

func isCompanion(path string) bool {
	return companionFailureExts[strings.ToLower(filepath.Ext(path))]
}
