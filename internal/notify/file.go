package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// FileBackup saves events as JSON files.
type FileBackup struct {
	dir string
}

// NewFileBackup creates a backup writer rooted at dir.
func NewFileBackup(dir string) (*FileBackup, error) {
	if dir == "" {
		dir = "./notify-backup"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	return &FileBackup{dir: dir}, nil
}

// Save writes evt to <dir>/run_<run id>.json.
func (f *FileBackup) Save(evt *RunEvent) error {
	path := filepath.Join(f.dir, fmt.Sprintf("run_%s.json", evt.Run.ID))

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	log.Printf("[notify] backed up to %s", path)
	return nil
}

// FileOnlyEmitter writes chained events to files without posting them.
type FileOnlyEmitter struct {
	chain  *ChainTracker
	backup *FileBackup
}

// NewFileOnlyEmitter creates an emitter that only writes local files.
func NewFileOnlyEmitter(backupDir string) (*FileOnlyEmitter, error) {
	chain, err := NewChainTracker(backupDir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	backup, err := NewFileBackup(backupDir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &FileOnlyEmitter{chain: chain, backup: backup}, nil
}

// Emit chains and saves evt.
func (e *FileOnlyEmitter) Emit(evt *RunEvent) error {
	prevHash, _ := e.chain.GetHead(chainKey)
	stamp(evt)
	evt.SetChainHashes(prevHash)

	log.Printf("[notify] file-only emit for run %s event_hash=%s", evt.Run.ID, evt.Chain.EventHash)

	if err := e.backup.Save(evt); err != nil {
		return err
	}

	if err := e.chain.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		log.Printf("[notify] warning: failed to update chain head: %v", err)
	}
	return nil
}

// Close releases resources.
func (e *FileOnlyEmitter) Close() error {
	return nil
}
