package upload

import (
	"fmt"
	"time"
)

const defaultTimeout = 10 * time.Second

// UploadContext is the per-destination transfer configuration. It is built
// once before a run starts and treated as read-only afterwards.
type UploadContext struct {
	Title          string
	Host           string
	Username       string
	Password       string
	UsePassiveMode bool
	UseEPSV        bool
	UseProxy       bool
	Proxy          *ProxySettings
	TimeoutSeconds int
	RetriesCount   int
	ImagesDir      string // empty means the login directory
	VectorsDir     string // empty means the login directory
	VerboseLogging bool
}

// Validate checks the context invariants.
func (uc *UploadContext) Validate() error {
	if uc == nil {
		return fmt.Errorf("%w: nil context", ErrInvalidContext)
	}
	if uc.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidContext)
	}
	if uc.RetriesCount < 0 {
		return fmt.Errorf("%w: negative retries count %d", ErrInvalidContext, uc.RetriesCount)
	}
	if uc.UseProxy && uc.Proxy == nil {
		return fmt.Errorf("%w: proxy enabled without proxy settings", ErrInvalidContext)
	}
	return nil
}

// Timeout returns the per-session timeout.
func (uc *UploadContext) Timeout() time.Duration {
	if uc.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(uc.TimeoutSeconds) * time.Second
}

// Attempts returns the number of attempts made per file.
func (uc *UploadContext) Attempts() int {
	return 1 + uc.RetriesCount
}

// Batch pairs one destination context with the ordered files sent to it.
type Batch struct {
	Context *UploadContext
	files   []string
}

// NewBatch creates a batch. The file list is copied.
func NewBatch(uc *UploadContext, files []string) (*Batch, error) {
	if err := uc.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: host %s", ErrEmptyBatch, uc.Host)
	}

	cp := make([]string, len(files))
	copy(cp, files)
	return &Batch{Context: uc, files: cp}, nil
}

// merge appends the paths the batch does not carry yet, keeping their order,
// and returns how many were added.
func (b *Batch) merge(paths []string) int {
	have := make(map[string]bool, len(b.files))
	for _, f := range b.files {
		have[f] = true
	}

	added := 0
	for _, p := range paths {
		if have[p] {
			continue
		}
		have[p] = true
		b.files = append(b.files, p)
		added++
	}
	return added
}

// Files returns a copy of the batch's file list in upload order.
func (b *Batch) Files() []string {
	cp := make([]string, len(b.files))
	copy(cp, b.files)
	return cp
}

// Len returns the number of files in the batch.
func (b *Batch) Len() int {
	return len(b.files)
}

// Host returns the destination host of the batch.
func (b *Batch) Host() string {
	return b.Context.Host
}
