package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoChainHead indicates no previous event exists for the chain.
var ErrNoChainHead = errors.New("no chain head found")

const chainKey = "upload_runs"

// ChainTracker persists the hash of the last emitted event.
type ChainTracker struct {
	mu       sync.RWMutex
	heads    map[string]string
	filePath string
}

// NewChainTracker creates a chain tracker that persists to dir.
func NewChainTracker(dir string) (*ChainTracker, error) {
	if dir == "" {
		dir = "./state"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chain tracker dir: %w", err)
	}

	ct := &ChainTracker{
		heads:    make(map[string]string),
		filePath: filepath.Join(dir, "notify-chain-heads.json"),
	}

	if err := ct.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load chain heads: %w", err)
	}

	return ct, nil
}

// GetHead returns the last event hash for key.
func (ct *ChainTracker) GetHead(key string) (string, error) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	hash, ok := ct.heads[key]
	if !ok || hash == "" {
		return "", ErrNoChainHead
	}
	return hash, nil
}

// SetHead records hash as the head of key and persists it.
func (ct *ChainTracker) SetHead(key, hash string) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.heads[key] = hash
	return ct.save()
}

func (ct *ChainTracker) load() error {
	data, err := os.ReadFile(ct.filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &ct.heads)
}

func (ct *ChainTracker) save() error {
	data, err := json.MarshalIndent(ct.heads, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := ct.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, ct.filePath)
}
