// Package upload pushes table snapshots to the dataset host from a single
// background worker.
package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mts-studios/targetview/pkg/table"
)

var (
	ErrQueueFull = errors.New("upload queue is full")
	ErrClosed    = errors.New("upload pipeline is closed")
)

const defaultQueueSize = 8

// Uploader sends a serialized table to the host.
type Uploader interface {
	Upload(ctx context.Context, payload []byte) error
}

// Logger abstracts logging so callers can use logrus or anything else.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Result is the outcome of one upload. Err is nil on success.
type Result struct {
	Rows     int
	Bytes    int
	Duration time.Duration
	Err      error
}

type job struct {
	payload []byte
	rows    int
	done    chan Result
}

// Pipeline runs uploads one at a time, in submission order.
type Pipeline struct {
	up  Uploader
	log Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// New starts the worker. log may be nil.
func New(up Uploader, log Logger) *Pipeline {
	if log == nil {
		log = nopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		up:     up,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, defaultQueueSize),
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

// Submit serializes t immediately, so the upload carries the table as it was
// at submit time, and queues it. It never blocks: a full queue, a closed
// pipeline or a serialization failure is reported on the returned channel
// straight away. The channel receives exactly one Result and is then closed.
func (p *Pipeline) Submit(t *table.Table) <-chan Result {
	done := make(chan Result, 1)

	payload, err := t.Serialize()
	if err != nil {
		done <- Result{Err: err}
		close(done)
		return done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		done <- Result{Err: ErrClosed}
		close(done)
		return done
	}

	select {
	case p.jobs <- job{payload: payload, rows: t.Len(), done: done}:
	default:
		done <- Result{Err: ErrQueueFull}
		close(done)
	}
	return done
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		start := time.Now()
		err := p.up.Upload(p.ctx, j.payload)
		res := Result{Rows: j.rows, Bytes: len(j.payload), Duration: time.Since(start), Err: err}
		if err != nil {
			p.log.Errorf("Upload of %d rows failed: %v", j.rows, err)
		} else {
			p.log.Infof("Uploaded %d rows (%d bytes) in %s", j.rows, len(j.payload), res.Duration.Round(time.Millisecond))
		}
		j.done <- res
		close(j.done)
	}
}

// Close stops accepting uploads and waits for queued ones to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}

// Abort is Close without waiting for the in-flight upload to complete
// normally: its context is cancelled first.
func (p *Pipeline) Abort() {
	p.cancel()
	p.Close()
}
