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

package chardev

import (
	"context"
	"sync"
	"time"

	"github.com/bulkrt/bulkrt/api"
)

// readPipeline owns the inbound buffer and the single outstanding inbound
// transfer. The buffer is mutated either by the submit path (under ioMu,
// only while no transfer is outstanding) or by the completion path (under
// mu, once per submitted transfer); the two never overlap in time.
type readPipeline struct {
	mu         sync.Mutex // fast lock, acquirable from the completion context
	buf        []byte     // owned, len == max inbound transfer size
	filled     int        // bytes delivered by the last completion
	consumed   int        // bytes already copied out to callers
	requesting bool       // an inbound transfer is outstanding
	waitCh     chan struct{} // closed when the outstanding transfer settles
	xfer       *api.Transfer // the one persistent inbound transfer
}

func (rp *readPipeline) init(s *Session) {
	if s.inMax <= 0 {
		return
	}
	rp.buf = make([]byte, s.inMax)
	rp.xfer = &api.Transfer{
		Dir:      api.DirIn,
		Endpoint: s.cfg.InEndpoint,
		Complete: s.readComplete,
	}
	ch := make(chan struct{})
	close(ch)
	rp.waitCh = ch
}

// Read copies buffered inbound bytes to p, starting a new inbound transfer
// when the buffer is exhausted. A single call never returns bytes spanning
// two underlying transfers: a short packet is delivered as-is and the next
// call triggers the next transfer.
//
// A zero-length p, or a device without an inbound channel, returns 0, nil.
func (h *Handle) Read(p []byte) (int, error) {
	return h.read(context.Background(), p)
}

// ReadContext is Read with an interruptible blocking wait.
func (h *Handle) ReadContext(ctx context.Context, p []byte) (int, error) {
	return h.read(ctx, p)
}

func (h *Handle) read(ctx context.Context, p []byte) (int, error) {
	s := h.s
	if len(p) == 0 || s.inMax <= 0 {
		return 0, nil
	}

	// No concurrent readers, and no teardown mid-read.
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if !s.alive {
		return 0, ErrDeviceNotFound
	}

	for {
		s.rp.mu.Lock()
		requesting := s.rp.requesting
		wait := s.rp.waitCh
		s.rp.mu.Unlock()

		if requesting {
			if h.nonblock {
				return 0, ErrWouldBlock
			}
			if err := waitSettled(ctx, wait, s.cfg.ReadWaitTimeout); err != nil {
				return 0, err
			}
		}

		// Errors pre-empt data delivery, even with residual bytes buffered.
		if err := s.latch.consume(); err != nil {
			return 0, err
		}

		s.rp.mu.Lock()
		if avail := s.rp.filled - s.rp.consumed; avail > 0 {
			n := copy(p, s.rp.buf[s.rp.consumed:s.rp.filled])
			s.rp.consumed += n
			s.rp.mu.Unlock()
			return n, nil
		}
		s.rp.mu.Unlock()

		if err := s.submitRead(len(p)); err != nil {
			return 0, err
		}
	}
}

// waitSettled blocks until the outstanding transfer settles, the context is
// canceled, or the bounded wait expires. Timeout surfaces ErrTimeout so the
// caller can retry instead of blocking forever.
func waitSettled(ctx context.Context, wait <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

// submitRead starts a new inbound transfer sized min(buffer, want).
// Caller holds ioMu and has verified no transfer is outstanding.
func (s *Session) submitRead(want int) error {
	rp := &s.rp
	n := min(len(rp.buf), want)

	rp.mu.Lock()
	t := rp.xfer
	t.Buf = rp.buf[:n]
	t.Status = api.StatusOK
	t.Actual = 0
	rp.requesting = true
	// Submitting means no data to deliver.
	rp.filled, rp.consumed = 0, 0
	rp.waitCh = make(chan struct{})
	rp.mu.Unlock()

	s.metrics.submitted(s.name, api.DirIn)
	if err := s.tr.Submit(t); err != nil {
		internalLogger.errorf("device %s: failed submitting read transfer: %v", s.name, err)
		rp.mu.Lock()
		rp.requesting = false
		close(rp.waitCh)
		rp.mu.Unlock()
		s.metrics.completed(s.name, api.DirIn, api.StatusIOError, 0)
		return mapSubmitError(err)
	}
	return nil
}

// readComplete runs on the transport's execution context, possibly
// concurrently with any caller. It touches state only under the fast lock,
// and wakes all waiters regardless of outcome.
func (s *Session) readComplete(t *api.Transfer) {
	if t.Status != api.StatusOK && !t.Status.Benign() {
		internalLogger.errorf("device %s: nonzero read transfer status: %v", s.name, t.Status)
		s.latch.set(t.Status)
		s.metrics.latched(s.name)
	}

	s.rp.mu.Lock()
	if t.Status == api.StatusOK {
		s.rp.filled = t.Actual
		s.rp.consumed = 0
	}
	s.rp.requesting = false
	waitCh := s.rp.waitCh
	s.rp.mu.Unlock()

	s.metrics.completed(s.name, api.DirIn, t.Status, t.Actual)
	close(waitCh)
}
