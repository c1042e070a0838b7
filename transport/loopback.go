/*
 * Copyright 2025 BulkRT Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport provides in-process implementations of the api.Transport
// contract. Loopback models an echo device: outbound payloads queue on a
// device-side ring and feed pending inbound transfers, with completions
// dispatched on a worker pool the way a real transport would fire them from
// its own context.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bulkrt/bulkrt/api"
)

const (
	defaultMaxTransfer       = 512
	defaultQueueDepth        = 64
	defaultCompletionWorkers = 4
)

// Config holds loopback creation parameters.
type Config struct {
	// InMaxTransfer and OutMaxTransfer bound single-transfer payloads per
	// direction. Zero selects the 512-byte default.
	InMaxTransfer  int
	OutMaxTransfer int

	// QueueDepth is the device-side echo ring capacity, in chunks.
	QueueDepth int

	// CompletionWorkers sizes the pool that runs completion callbacks.
	CompletionWorkers int

	// Meter and Tracer instrument transfer dispatch when non-nil.
	Meter  metric.Meter
	Tracer trace.Tracer
}

type inflightEntry struct {
	done    chan struct{}
	claimed bool
}

// Loopback is an in-process api.Transport backed by an echo device model.
// It is used by integration tests and examples.
type Loopback struct {
	cfg  Config
	fifo *queue.RingBuffer
	pool *ants.Pool

	mu        sync.Mutex
	inflight  map[*api.Transfer]*inflightEntry
	pendingIn []*api.Transfer
	active    int
	detached  bool

	serving   atomic.Bool
	stallNext atomic.Bool

	submittedCtr metric.Int64Counter
	completedCtr metric.Int64Counter
	tracer       trace.Tracer
}

// NewLoopback creates a loopback transport.
func NewLoopback(cfg Config) (*Loopback, error) {
	if cfg.InMaxTransfer <= 0 {
		cfg.InMaxTransfer = defaultMaxTransfer
	}
	if cfg.OutMaxTransfer <= 0 {
		cfg.OutMaxTransfer = defaultMaxTransfer
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.CompletionWorkers <= 0 {
		cfg.CompletionWorkers = defaultCompletionWorkers
	}
	pool, err := ants.NewPool(cfg.CompletionWorkers)
	if err != nil {
		return nil, err
	}
	l := &Loopback{
		cfg:      cfg,
		fifo:     queue.NewRingBuffer(uint64(cfg.QueueDepth)),
		pool:     pool,
		inflight: make(map[*api.Transfer]*inflightEntry),
		tracer:   cfg.Tracer,
	}
	if cfg.Meter != nil {
		l.submittedCtr, _ = cfg.Meter.Int64Counter("loopback.transfers.submitted")
		l.completedCtr, _ = cfg.Meter.Int64Counter("loopback.transfers.completed")
	}
	return l, nil
}

// Activate acquires one usage token. Fails once the device is detached.
func (l *Loopback) Activate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.detached {
		return api.ErrTransportDown
	}
	l.active++
	return nil
}

// Deactivate releases one usage token.
func (l *Loopback) Deactivate() {
	l.mu.Lock()
	if l.active > 0 {
		l.active--
	}
	l.mu.Unlock()
}

// MaxTransfer implements api.Transport.
func (l *Loopback) MaxTransfer(dir api.Direction) int {
	if dir == api.DirIn {
		return l.cfg.InMaxTransfer
	}
	return l.cfg.OutMaxTransfer
}

// Submit implements api.Transport. Outbound payloads are copied onto the
// echo ring; inbound transfers stay pending until echo data is available or
// they are canceled.
func (l *Loopback) Submit(t *api.Transfer) error {
	if t == nil || t.Complete == nil {
		return errors.New("loopback: transfer without completion callback")
	}
	maxLen := l.MaxTransfer(t.Dir)
	if len(t.Buf) == 0 || len(t.Buf) > maxLen {
		return fmt.Errorf("loopback: bad %s transfer length %d (max %d)", t.Dir, len(t.Buf), maxLen)
	}

	l.mu.Lock()
	if l.detached {
		l.mu.Unlock()
		return api.ErrTransportDown
	}
	if _, ok := l.inflight[t]; ok {
		l.mu.Unlock()
		return errors.New("loopback: transfer already submitted")
	}
	l.inflight[t] = &inflightEntry{done: make(chan struct{})}

	switch t.Dir {
	case api.DirOut:
		chunk := append([]byte(nil), t.Buf...)
		l.mu.Unlock()
		if err := l.pool.Submit(func() { l.completeOut(t, chunk) }); err != nil {
			l.mu.Lock()
			delete(l.inflight, t)
			l.mu.Unlock()
			return api.ErrTransportNoMem
		}
	default:
		l.pendingIn = append(l.pendingIn, t)
		l.mu.Unlock()
		l.kickServe()
	}

	l.count(l.submittedCtr)
	return nil
}

// Cancel implements api.Transport: a synchronous kill. If the transfer is
// mid-completion elsewhere, Cancel waits for that callback to finish.
func (l *Loopback) Cancel(t *api.Transfer) {
	l.mu.Lock()
	e, ok := l.inflight[t]
	l.mu.Unlock()
	if !ok {
		return
	}
	if !l.finish(t, api.StatusCanceled, 0) {
		<-e.done
	}
}

// Detach invalidates the device: pending and in-flight transfers complete
// with StatusShutdown, later submissions and activations fail.
func (l *Loopback) Detach() {
	l.mu.Lock()
	if l.detached {
		l.mu.Unlock()
		return
	}
	l.detached = true
	all := make([]*api.Transfer, 0, len(l.inflight))
	for t := range l.inflight {
		all = append(all, t)
	}
	l.pendingIn = nil
	l.mu.Unlock()

	for _, t := range all {
		if !l.finish(t, api.StatusShutdown, 0) {
			l.mu.Lock()
			e, ok := l.inflight[t]
			l.mu.Unlock()
			if ok {
				<-e.done
			}
		}
	}
	l.fifo.Dispose()
}

// Close detaches (if not already) and releases the completion pool.
func (l *Loopback) Close() {
	l.Detach()
	l.pool.Release()
}

// QueuedChunks reports the number of echo chunks waiting device-side.
func (l *Loopback) QueuedChunks() int { return int(l.fifo.Len()) }

// ActiveCount reports the current activation (usage token) count.
func (l *Loopback) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// StallNextRead makes the next inbound completion report StatusStall,
// emulating a halted endpoint.
func (l *Loopback) StallNextRead() {
	l.stallNext.Store(true)
	l.kickServe()
}

func (l *Loopback) completeOut(t *api.Transfer, chunk []byte) {
	st := api.StatusOK
	if ok, err := l.fifo.Offer(chunk); err != nil {
		st = api.StatusShutdown
	} else if !ok {
		// Device-side queue full.
		st = api.StatusIOError
	}
	n := 0
	if st == api.StatusOK {
		n = len(chunk)
	}
	l.finish(t, st, n)
	l.kickServe()
}

func (l *Loopback) kickServe() {
	_ = l.pool.Submit(l.serveIn)
}

// serveIn feeds queued echo chunks to pending inbound transfers. A single
// server runs at a time; the recheck after handoff closes the window where
// a kick arrives while the server is exiting.
func (l *Loopback) serveIn() {
	if !l.serving.CompareAndSwap(false, true) {
		return
	}
	l.serveLoop()
	l.serving.Store(false)

	l.mu.Lock()
	again := len(l.pendingIn) > 0 && l.fifo.Len() > 0
	l.mu.Unlock()
	if again {
		l.kickServe()
	}
}

func (l *Loopback) serveLoop() {
	for {
		l.mu.Lock()
		if l.detached || len(l.pendingIn) == 0 {
			l.mu.Unlock()
			return
		}
		t := l.pendingIn[0]
		l.mu.Unlock()

		if l.stallNext.Swap(false) {
			l.finish(t, api.StatusStall, 0)
			continue
		}

		item, err := l.fifo.Poll(time.Millisecond)
		if err != nil {
			// No echo data yet; the transfer stays pending.
			return
		}
		chunk := item.([]byte)
		n := copy(t.Buf, chunk)
		if !l.finish(t, api.StatusOK, n) {
			// Lost the race to a cancel; keep the data for the next reader.
			_, _ = l.fifo.Offer(chunk)
		}
	}
}

// finish completes t exactly once. Returns false when another path already
// claimed the completion.
func (l *Loopback) finish(t *api.Transfer, st api.Status, actual int) bool {
	l.mu.Lock()
	e, ok := l.inflight[t]
	if !ok || e.claimed {
		l.mu.Unlock()
		return false
	}
	e.claimed = true
	for i, p := range l.pendingIn {
		if p == t {
			l.pendingIn = append(l.pendingIn[:i], l.pendingIn[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	t.Status = st
	t.Actual = actual
	if l.tracer != nil {
		_, span := l.tracer.Start(context.Background(), "loopback.complete")
		t.Complete(t)
		span.End()
	} else {
		t.Complete(t)
	}
	l.count(l.completedCtr)

	l.mu.Lock()
	delete(l.inflight, t)
	close(e.done)
	l.mu.Unlock()
	return true
}

func (l *Loopback) count(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1)
	}
}
