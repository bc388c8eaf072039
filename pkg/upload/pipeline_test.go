package upload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mts-studios/targetview/pkg/table"
)

type fakeUploader struct {
	mu       sync.Mutex
	payloads []string
	inFlight int32
	maxSeen  int32
	gate     chan struct{}
	err      error
}

func (f *fakeUploader) Upload(ctx context.Context, payload []byte) error {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.payloads = append(f.payloads, string(payload))
	f.mu.Unlock()
	return f.err
}

func wait(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for upload result")
	}
	return Result{}
}

func TestSubmitSnapshotsAtSubmitTime(t *testing.T) {
	up := &fakeUploader{gate: make(chan struct{})}
	p := New(up, nil)
	defer p.Close()

	tbl := table.New(table.Record{Title: "before"})
	done := p.Submit(tbl)

	// Mutate after submit; the queued upload must not see it.
	tbl.Append(table.Record{Title: "after"})
	close(up.gate)

	res := wait(t, done)
	if res.Err != nil {
		t.Fatalf("upload: %v", res.Err)
	}
	if res.Rows != 1 {
		t.Fatalf("expected 1 row, got %d", res.Rows)
	}
	if len(up.payloads) != 1 || strings.Contains(up.payloads[0], "after") {
		t.Fatalf("payload reflects later mutation: %q", up.payloads)
	}
}

func TestUploadsAreSerialized(t *testing.T) {
	up := &fakeUploader{}
	p := New(up, nil)

	var results []<-chan Result
	for i := 0; i < 5; i++ {
		results = append(results, p.Submit(table.New(table.Record{Title: strings.Repeat("x", i+1)})))
	}
	for _, ch := range results {
		if res := wait(t, ch); res.Err != nil {
			t.Fatalf("upload: %v", res.Err)
		}
	}
	p.Close()

	if atomic.LoadInt32(&up.maxSeen) != 1 {
		t.Fatalf("expected at most one upload in flight, saw %d", up.maxSeen)
	}
	for i, payload := range up.payloads {
		if !strings.Contains(payload, "\n"+strings.Repeat("x", i+1)+",") {
			t.Fatalf("uploads out of order at %d: %q", i, payload)
		}
	}
}

func TestFailureIsReported(t *testing.T) {
	p := New(&fakeUploader{err: errors.New("HTTP 500")}, nil)
	defer p.Close()

	res := wait(t, p.Submit(table.New()))
	if res.Err == nil || res.Err.Error() != "HTTP 500" {
		t.Fatalf("expected failure to surface, got %v", res.Err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(&fakeUploader{}, nil)
	p.Close()
	p.Close()

	if res := wait(t, p.Submit(table.New())); !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", res.Err)
	}
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	up := &fakeUploader{gate: make(chan struct{})}
	p := New(up, nil)
	defer func() {
		close(up.gate)
		p.Close()
	}()

	full := 0
	var pending []<-chan Result
	for i := 0; i < defaultQueueSize+2; i++ {
		ch := p.Submit(table.New())
		select {
		case res := <-ch:
			if errors.Is(res.Err, ErrQueueFull) {
				full++
			}
		default:
			pending = append(pending, ch)
		}
	}
	if full == 0 {
		t.Fatalf("expected at least one ErrQueueFull with %d pending", len(pending))
	}
}

func TestCloseDrainsQueuedUploads(t *testing.T) {
	up := &fakeUploader{gate: make(chan struct{})}
	p := New(up, nil)

	first := p.Submit(table.New(table.Record{Title: "one"}))
	second := p.Submit(table.New(table.Record{Title: "two"}))

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatalf("Close returned while uploads were still queued")
	case <-time.After(50 * time.Millisecond):
	}

	close(up.gate)
	for _, ch := range []<-chan Result{first, second} {
		if res := wait(t, ch); res.Err != nil {
			t.Fatalf("queued upload failed: %v", res.Err)
		}
	}
	<-closed
	if len(up.payloads) != 2 {
		t.Fatalf("expected both uploads to run, got %d", len(up.payloads))
	}
}

func TestAbortCancelsInFlight(t *testing.T) {
	up := &fakeUploader{gate: make(chan struct{})}
	p := New(up, nil)

	done := p.Submit(table.New(table.Record{Title: "stuck"}))
	p.Abort()

	res := wait(t, done)
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
}
