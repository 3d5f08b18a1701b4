// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
)

// writeJob is one store write.
type writeJob struct {
	op     string
	run    func(ctx context.Context) error
	done   chan error // buffered, may be nil
	report bool       // send failures to the error callback
}

// writer executes store writes one at a time in submission order. The
// queue is unbounded so enqueueing never blocks the caller.
type writer struct {
	mu      sync.Mutex
	queue   []writeJob
	closed  bool
	signal  chan struct{}
	stopped chan struct{}
	onError func(op string, err error, report bool)
}

func newWriter(onError func(op string, err error, report bool)) *writer {
	w := &writer{
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		onError: onError,
	}
	go w.run()
	return w
}

// enqueue adds a job. It returns false once the writer is closed.
func (w *writer) enqueue(job writeJob) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, job)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting jobs and waits for the queue to drain.
func (w *writer) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	<-w.stopped
}

func (w *writer) run() {
	defer close(w.stopped)

	// Jobs are drained after close, so they do not share a context that
	// close cancels.
	ctx := context.Background()
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.signal
			continue
		}
		job := w.queue[0]
		w.queue[0] = writeJob{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		err := job.run(ctx)
		if err != nil && w.onError != nil {
			w.onError(job.op, err, job.report)
		}
		if job.done != nil {
			job.done <- err
		}
	}
}
