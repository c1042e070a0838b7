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

// Package chardev implements the concurrency and buffering core of a
// character-device-style session over an asynchronous bulk transport.
//
// A Registry maps device names to Sessions. Opening a device yields a
// Handle with the familiar byte-stream surface: Read, Write, Flush, Close,
// and the CanRead/CanWrite readiness queries. Transfers complete
// asynchronously on the transport's execution context; the session
// multiplexes those completions against synchronous callers and tears
// everything down safely on detach, suspend, and reset.
package chardev

import (
	"sync"
	"sync/atomic"

	"github.com/bulkrt/bulkrt/api"
)

// Session is the live state of one attached device.
//
// A Session is shared: the registry holds one reference, every open Handle
// holds another. The backing buffers are released exactly when the count
// reaches zero, which may be at last-close-after-detach or at
// detach-after-all-closed.
type Session struct {
	name string
	tr   api.Transport

	refs atomic.Int32

	// ioMu serializes read/write/flush submission against teardown. The
	// liveness flag flips true->false exactly once, under ioMu; no transfer
	// is submitted once it is false.
	ioMu  sync.Mutex
	alive bool

	inMax  int
	outMax int

	latch    errorLatch
	rp       readPipeline
	wp       writePipeline
	anchored *anchorSet

	cfg     *Config
	metrics *Metrics
}

func newSession(name string, tr api.Transport, cfg *Config, m *Metrics) *Session {
	s := &Session{
		name:     name,
		tr:       tr,
		alive:    true,
		inMax:    tr.MaxTransfer(api.DirIn),
		outMax:   tr.MaxTransfer(api.DirOut),
		anchored: newAnchorSet(),
		cfg:      cfg,
		metrics:  m,
	}
	s.refs.Store(1)
	s.rp.init(s)
	s.wp.init(cfg.WritesInFlight)
	return s
}

// Name returns the registry name the session was attached under.
func (s *Session) Name() string { return s.name }

// tryRef adds one reference unit unless the count already hit zero.
func (s *Session) tryRef() bool {
	for {
		c := s.refs.Load()
		if c == 0 {
			return false
		}
		if s.refs.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

func (s *Session) unref() {
	n := s.refs.Add(-1)
	if n < 0 {
		panic("chardev: session refcount underflow")
	}
	if n == 0 {
		s.destroy()
	}
}

// destroy releases the owned buffers. It runs on whatever call stack
// dropped the last reference; nothing here blocks or submits.
func (s *Session) destroy() {
	s.rp.mu.Lock()
	s.rp.buf = nil
	s.rp.xfer = nil
	s.rp.filled, s.rp.consumed = 0, 0
	s.rp.mu.Unlock()

	internalLogger.infof("device %s: session released", s.name)
	if s.cfg.OnRelease != nil {
		s.cfg.OnRelease()
	}
}

// drain stops in-flight I/O: it waits out anchored outbound transfers up to
// the drain timeout, force-cancels whatever remains, and unconditionally
// kills the outstanding inbound transfer.
//
// drain never acquires ioMu; callers hold it (pre-reset, flush) or not
// (suspend), and are responsible for consistent lock ordering.
func (s *Session) drain() {
	if !s.anchored.waitEmpty(s.cfg.DrainTimeout) {
		internalLogger.warnf("device %s: drain timeout, canceling %d anchored transfers",
			s.name, s.anchored.len())
		s.anchored.cancelAll(s.tr)
	}
	s.rp.mu.Lock()
	xfer := s.rp.xfer
	s.rp.mu.Unlock()
	if xfer != nil {
		s.tr.Cancel(xfer)
	}
}

// Suspend drains in-flight transfers ahead of a transport power-down. The
// session stays usable; the next read or write starts fresh I/O.
func (s *Session) Suspend() {
	s.drain()
}

// Resume is the counterpart hook to Suspend. Nothing to rebuild: pipelines
// restart lazily on the next call.
func (s *Session) Resume() {}

// Reset brackets a forced transport reset: it drains under the I/O lock and
// latches a stall so the next read or write reports ErrBrokenPipe once.
func (s *Session) Reset() {
	s.ioMu.Lock()
	s.drain()
	s.latch.set(api.StatusStall)
	s.metrics.latched(s.name)
	s.ioMu.Unlock()
}

// Handle is one open descriptor onto a Session.
//
// A Handle is not safe for concurrent use of the same method, matching file
// descriptor semantics; distinct Handles on one Session are.
type Handle struct {
	s        *Session
	nonblock bool
	closed   atomic.Bool
}

// SetNonblock switches the handle between blocking and non-blocking I/O.
// In non-blocking mode Read and Write fail with ErrWouldBlock instead of
// suspending.
func (h *Handle) SetNonblock(nb bool) { h.nonblock = nb }

// Close releases the transport activation (tolerating teardown having
// already happened) and drops the handle's reference unit. The last unit
// release frees the session's buffers synchronously.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return ErrInvalidArgument
	}
	s := h.s
	s.ioMu.Lock()
	if s.alive {
		s.tr.Deactivate()
	}
	s.ioMu.Unlock()
	s.unref()
	return nil
}

// Flush drains in-flight transfers, then performs the same
// consume-and-clear the read path does, leaving the next caller a clean
// slate. A benign drain returns nil.
func (h *Handle) Flush() error {
	s := h.s
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	s.drain()
	return s.latch.consume()
}
