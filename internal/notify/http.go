package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPEmitter posts chained events to a webhook and keeps a local backup.
type HTTPEmitter struct {
	endpoint   string
	client     *http.Client
	chain      *ChainTracker
	backup     *FileBackup
	retries    int
	retryDelay time.Duration
}

// NewHTTPEmitter creates an HTTP emitter for cfg.Endpoint.
func NewHTTPEmitter(cfg Config) (*HTTPEmitter, error) {
	chain, err := NewChainTracker(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	backup, err := NewFileBackup(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &HTTPEmitter{
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		chain:      chain,
		backup:     backup,
		retries:    3,
		retryDelay: time.Second,
	}, nil
}

// Emit chains evt, backs it up and posts it. The chain head only advances
// after a successful post.
func (e *HTTPEmitter) Emit(ctx context.Context, evt *RunEvent) error {
	prevHash, err := e.chain.GetHead(chainKey)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		return fmt.Errorf("get chain head: %w", err)
	}

	stamp(evt)
	evt.SetChainHashes(prevHash)

	if prevHash == "" {
		log.Printf("[notify] emitting run %s (first in chain)", evt.Run.ID)
	} else {
		log.Printf("[notify] emitting run %s prev_hash=%s", evt.Run.ID, prevHash)
	}

	if err := e.backup.Save(evt); err != nil {
		log.Printf("[notify] warning: backup failed: %v", err)
	}

	if err := e.postWithRetry(ctx, evt); err != nil {
		return fmt.Errorf("notify emit failed: %w", err)
	}

	if err := e.chain.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		log.Printf("[notify] warning: failed to update chain head: %v", err)
	}
	return nil
}

func (e *HTTPEmitter) postWithRetry(ctx context.Context, evt *RunEvent) error {
	var lastErr error
	delay := e.retryDelay

	for attempt := 1; attempt <= e.retries; attempt++ {
		err := e.post(ctx, evt)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < e.retries {
			log.Printf("[notify] attempt %d/%d failed: %v, retrying in %v", attempt, e.retries, err, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", e.retries, lastErr)
}

func (e *HTTPEmitter) post(ctx context.Context, evt *RunEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Printf("[notify] POST %s -> %d", e.endpoint, resp.StatusCode)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

// Close releases resources.
func (e *HTTPEmitter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
