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

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/semaphore"

	"github.com/bulkrt/bulkrt/api"
)

// writePipeline bounds the number of concurrently submitted outbound
// transfers. Each write takes a fresh pooled buffer, freed on completion;
// with a limiter capacity of 1 this degenerates to one serialized in-flight
// transfer.
type writePipeline struct {
	sem *semaphore.Weighted
}

func (wp *writePipeline) init(capacity int) {
	wp.sem = semaphore.NewWeighted(int64(capacity))
}

// Write submits p as one outbound transfer and returns without waiting for
// it to complete. Payloads beyond the transport's max transfer size are
// truncated to a short write, never an error. A zero-length write fails
// with ErrInvalidArgument.
func (h *Handle) Write(p []byte) (int, error) {
	return h.write(context.Background(), p)
}

// WriteContext is Write with an interruptible wait on the limiter.
func (h *Handle) WriteContext(ctx context.Context, p []byte) (int, error) {
	return h.write(ctx, p)
}

func (h *Handle) write(ctx context.Context, p []byte) (int, error) {
	s := h.s
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	n := min(len(p), s.outMax)

	// The limiter stops a caller from using up all memory with in-flight
	// transfers.
	if h.nonblock {
		if !s.wp.sem.TryAcquire(1) {
			return 0, ErrWouldBlock
		}
	} else if err := s.wp.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}

	if err := s.latch.consume(); err != nil {
		s.wp.sem.Release(1)
		return 0, err
	}

	buf := bytebufferpool.Get()
	_, _ = buf.Write(p[:n])
	t := &api.Transfer{
		Dir:      api.DirOut,
		Endpoint: s.cfg.OutEndpoint,
		Buf:      buf.B[:n],
		Complete: s.writeComplete,
		Private:  buf,
	}

	// This lock makes sure we don't submit transfers to gone devices.
	s.ioMu.Lock()
	if !s.alive {
		s.ioMu.Unlock()
		bytebufferpool.Put(buf)
		s.wp.sem.Release(1)
		return 0, ErrDeviceNotFound
	}
	s.anchored.add(t)
	err := s.tr.Submit(t)
	s.ioMu.Unlock()

	if err != nil {
		internalLogger.errorf("device %s: failed submitting write transfer: %v", s.name, err)
		s.anchored.remove(t)
		bytebufferpool.Put(buf)
		s.wp.sem.Release(1)
		return 0, mapSubmitError(err)
	}

	s.metrics.submitted(s.name, api.DirOut)
	return n, nil
}

// writeComplete runs on the transport's execution context. It recycles the
// transfer's buffer, removes it from the anchor set, and releases one
// limiter unit, latching any non-benign status first.
func (s *Session) writeComplete(t *api.Transfer) {
	if t.Status != api.StatusOK && !t.Status.Benign() {
		internalLogger.errorf("device %s: nonzero write transfer status: %v", s.name, t.Status)
		s.latch.set(t.Status)
		s.metrics.latched(s.name)
	}

	if buf, ok := t.Private.(*bytebufferpool.ByteBuffer); ok {
		t.Private = nil
		t.Buf = nil
		bytebufferpool.Put(buf)
	}

	s.metrics.completed(s.name, api.DirOut, t.Status, t.Actual)
	s.anchored.remove(t)
	s.wp.sem.Release(1)
}
