package selfupdate

import (
	"context"
	"sync"
	"time"
)

// Watcher runs a job once at start and then on every tick until stopped.
type Watcher struct {
	interval time.Duration
	job      func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher builds a watcher. An interval <= 0 runs the job only at start.
func NewWatcher(interval time.Duration, job func(ctx context.Context)) *Watcher {
	return &Watcher{interval: interval, job: job}
}

// Start begins the schedule. Calling it on a running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.job == nil || w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		w.job(ctx)
		if w.interval <= 0 {
			return
		}
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.job(ctx)
			case <-ctx.Done():
				return
			}
		}
	}(w.done)
}

// Stop cancels the schedule and waits for a running job to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
