package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/withObsrvr/artwork-uploader/internal/logging"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
)

// Dialer opens an authenticated FTP session for an upload context.
type Dialer interface {
	Dial(ctx context.Context, uc *UploadContext) (Session, error)
}

// Session is one logged-in FTP control connection.
type Session interface {
	Stor(remotePath string, r io.Reader) error
	MakeDir(remotePath string) error
	NameList(remotePath string) ([]string, error)
	Quit() error
}

// TransportEvents receives the events of one Transport run. Nil fields are
// ignored. Callbacks run on the Transport's goroutine.
type TransportEvents struct {
	Progress func(prev, next float64)
	Outcome  func(TransferOutcome)
}

func (e TransportEvents) progress(prev, next float64) {
	if e.Progress != nil {
		e.Progress(prev, next)
	}
}

func (e TransportEvents) outcome(o TransferOutcome) {
	if e.Outcome != nil {
		e.Outcome(o)
	}
}

// RemotePath returns the path, relative to the login directory, that
// localPath is stored under: the host URL path, then the vectors or images
// directory, then the file name.
func RemotePath(uc *UploadContext, localPath string) string {
	var base string
	if _, p, err := ParseHost(uc.Host); err == nil {
		base = p
	}

	sub := uc.ImagesDir
	if IsVector(localPath) {
		sub = uc.VectorsDir
	}

	return strings.TrimPrefix(path.Join("/", base, sub, filepath.Base(localPath)), "/")
}

// Transport uploads one batch sequentially over a single FTP session.
type Transport struct {
	batch  *Batch
	dialer Dialer
	log    *slog.Logger

	session  Session
	madeDirs map[string]bool
}

// NewTransport creates a Transport for batch.
func NewTransport(batch *Batch, dialer Dialer) *Transport {
	return &Transport{
		batch:  batch,
		dialer: dialer,
		log:    logging.HostLogger(batch.Host()).With("component", "transport"),
	}
}

// Run uploads every file in order. A file that fails all attempts is
// reported and skipped. Run stops early when ctx is cancelled; the file in
// flight then produces no outcome. It returns true only when every file was
// uploaded and the run was not cancelled.
func (t *Transport) Run(ctx context.Context, events TransportEvents) bool {
	defer t.closeSession()

	files := t.batch.files
	progress := newBatchProgress(len(files), events.progress)
	defer progress.finish()

	ok := true
	for i, localPath := range files {
		if ctx.Err() != nil {
			t.log.Info("upload cancelled", "remaining", len(files)-i)
			return false
		}

		outcome, aborted := t.uploadFile(ctx, localPath, func(sent, size int64) {
			progress.update(i, sent, size)
		})
		if aborted {
			t.log.Info("upload cancelled", "file", localPath, "remaining", len(files)-i)
			return false
		}

		progress.fileDone(i + 1)
		if !outcome.Success {
			ok = false
		}
		events.outcome(outcome)
	}

	return ok
}

// uploadFile makes up to 1+RetriesCount attempts. aborted is true when ctx
// was cancelled before the file completed.
func (t *Transport) uploadFile(ctx context.Context, localPath string, onBytes func(sent, size int64)) (TransferOutcome, bool) {
	uc := t.batch.Context
	m := metrics.Get()

	out := TransferOutcome{
		FilePath:   localPath,
		Host:       uc.Host,
		RemotePath: RemotePath(uc, localPath),
	}
	start := time.Now()

	for attempt := 1; attempt <= uc.Attempts(); attempt++ {
		if ctx.Err() != nil {
			return out, true
		}
		if attempt > 1 {
			m.IncRetryAttempts(uc.Host)
		}
		out.Attempts = attempt

		n, err := t.store(ctx, localPath, out.RemotePath, onBytes)
		if err == nil {
			out.Success = true
			out.Err = nil
			out.Bytes = n
			m.RecordFileUploaded(uc.Host, n, time.Since(start).Seconds())
			if uc.VerboseLogging {
				t.log.Info("file uploaded", "file", localPath, "remote", out.RemotePath, "bytes", n, "attempt", attempt)
			}
			return out, false
		}

		if ctx.Err() != nil {
			return out, true
		}

		out.Err = err
		t.log.Warn("upload attempt failed",
			"file", localPath,
			"attempt", attempt,
			"max_attempts", uc.Attempts(),
			"error", err,
		)
		t.closeSession()
	}

	m.IncFilesFailed(uc.Host)
	t.log.Error("file upload failed", "file", localPath, "attempts", out.Attempts, "error", out.Err)
	return out, false
}

func (t *Transport) store(ctx context.Context, localPath, remotePath string, onBytes func(sent, size int64)) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", localPath, err)
	}
	size := info.Size()

	sess, err := t.ensureSession(ctx)
	if err != nil {
		return 0, err
	}
	t.ensureDir(sess, path.Dir(remotePath))

	r := &progressReader{
		ctx: ctx,
		r:   f,
		onRead: func(sent int64) {
			onBytes(sent, size)
		},
	}
	if err := sess.Stor(remotePath, r); err != nil {
		return r.sent, fmt.Errorf("stor %s: %w", remotePath, err)
	}

	return r.sent, nil
}

func (t *Transport) ensureSession(ctx context.Context) (Session, error) {
	if t.session != nil {
		return t.session, nil
	}

	uc := t.batch.Context
	sess, err := t.dialer.Dial(ctx, uc)
	if err != nil {
		metrics.Get().IncDialErrors(uc.Host)
		return nil, fmt.Errorf("connect %s: %w", uc.Host, err)
	}

	t.session = sess
	t.madeDirs = make(map[string]bool)
	return sess, nil
}

// ensureDir creates each component of dir once per session. Errors are
// ignored: the directory usually exists already.
func (t *Transport) ensureDir(sess Session, dir string) {
	if dir == "." || dir == "/" || dir == "" {
		return
	}

	var cur string
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		if t.madeDirs[cur] {
			continue
		}
		t.madeDirs[cur] = true
		if err := sess.MakeDir(cur); err != nil {
			t.log.Debug("make dir", "dir", cur, "error", err)
		}
	}
}

func (t *Transport) closeSession() {
	if t.session == nil {
		return
	}
	if err := t.session.Quit(); err != nil {
		t.log.Debug("quit session", "error", err)
	}
	t.session = nil
	t.madeDirs = nil
}
