package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

var errRejected = errors.New("550 rejected")

// fakeDialer hands out in-memory sessions and records what they store.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	dialErr  error
	stored   []string       // "host|remote" of successful stores, in order
	dirs     []string       // MakeDir calls
	listed   []string       // NameList calls
	failures map[string]int // base name -> failures left; -1 fails forever

	// onStor, when set, replaces the default read-everything behaviour.
	onStor func(host, remote string, r io.Reader) error

	active    int32
	maxActive int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{failures: make(map[string]int)}
}

func (d *fakeDialer) Dial(ctx context.Context, uc *UploadContext) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeSession{d: d, host: uc.Host}, nil
}

func (d *fakeDialer) failFile(base string, times int) {
	d.mu.Lock()
	d.failures[base] = times
	d.mu.Unlock()
}

func (d *fakeDialer) storedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.stored))
	copy(out, d.stored)
	return out
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeSession struct {
	d    *fakeDialer
	host string
}

func (s *fakeSession) Stor(remote string, r io.Reader) error {
	n := atomic.AddInt32(&s.d.active, 1)
	defer atomic.AddInt32(&s.d.active, -1)
	for {
		cur := atomic.LoadInt32(&s.d.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(&s.d.maxActive, cur, n) {
			break
		}
	}

	if s.d.onStor != nil {
		if err := s.d.onStor(s.host, remote, r); err != nil {
			return err
		}
	} else if _, err := io.ReadAll(r); err != nil {
		return err
	}

	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	base := path.Base(remote)
	if left, ok := s.d.failures[base]; ok && left != 0 {
		if left > 0 {
			s.d.failures[base] = left - 1
		}
		return errRejected
	}

	s.d.stored = append(s.d.stored, s.host+"|"+remote)
	return nil
}

func (s *fakeSession) MakeDir(remote string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.dirs = append(s.d.dirs, remote)
	return nil
}

func (s *fakeSession) NameList(remote string) ([]string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.listed = append(s.d.listed, remote)
	return []string{"existing.jpg"}, nil
}

func (s *fakeSession) Quit() error {
	return nil
}

// writeFiles creates files with the given names and contents under dir and
// returns their paths in order.
func writeFiles(t *testing.T, dir string, files map[string]string, order ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(order))
	for _, name := range order {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(files[name]), 0644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		paths = append(paths, p)
	}
	return paths
}

func testContext(host string) *UploadContext {
	return &UploadContext{
		Host:           host,
		Username:       "user",
		Password:       "secret",
		UsePassiveMode: true,
		UseEPSV:        true,
		RetriesCount:   RetriesCount,
	}
}

// zipArchiver maps an artwork to <dir>/<stem>.zip without creating it.
type zipArchiver struct{}

func (zipArchiver) ArchivePathFor(filePath string) string {
	ext := filepath.Ext(filePath)
	return filePath[:len(filePath)-len(ext)] + ".zip"
}

// failingDecoder rejects one encoded password.
type failingDecoder struct {
	reject string
}

func (d failingDecoder) Decode(encoded string) (string, error) {
	if encoded == d.reject {
		return "", errors.New("cannot decode")
	}
	return encoded, nil
}
