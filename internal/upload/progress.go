package upload

import (
	"context"
	"io"
)

// progressReader counts bytes read from r and aborts once ctx is done.
// Stor reads through it, so a cancelled context stops the transfer at the
// next chunk.
type progressReader struct {
	ctx    context.Context
	r      io.Reader
	sent   int64
	onRead func(sent int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := pr.r.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		if pr.onRead != nil {
			pr.onRead(pr.sent)
		}
	}
	return n, err
}

// batchProgress turns per-file byte counts into a non-decreasing batch
// percentage and emits every increase as (prev, next).
type batchProgress struct {
	totalFiles int
	last       float64
	emit       func(prev, next float64)
}

func newBatchProgress(totalFiles int, emit func(prev, next float64)) *batchProgress {
	return &batchProgress{totalFiles: totalFiles, emit: emit}
}

// update reports bytes sent for the file at index done (0-based), after done
// files have completed.
func (p *batchProgress) update(done int, sent, size int64) {
	if p.totalFiles <= 0 {
		return
	}

	frac := 1.0
	if size > 0 {
		frac = float64(sent) / float64(size)
		if frac > 1 {
			frac = 1
		}
	}

	p.set((float64(done) + frac) / float64(p.totalFiles) * 100)
}

// fileDone marks done files as completed.
func (p *batchProgress) fileDone(done int) {
	if p.totalFiles <= 0 {
		return
	}
	p.set(float64(done) / float64(p.totalFiles) * 100)
}

// finish emits the final step to exactly 100.
func (p *batchProgress) finish() {
	p.set(100)
}

func (p *batchProgress) set(v float64) {
	if v > 100 {
		v = 100
	}
	if v <= p.last {
		return
	}

	prev := p.last
	p.last = v
	if p.emit != nil {
		p.emit(prev, v)
	}
}

func (p *batchProgress) percent() float64 {
	return p.last
}
