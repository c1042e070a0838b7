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
	"sync"
	"testing"
	"time"

	"github.com/bulkrt/bulkrt/api"
)

// mockTransport is a hand-driven transport: tests decide when and how each
// submitted transfer completes, standing in for the asynchronous
// completion-notification context.
type mockTransport struct {
	mu          sync.Mutex
	inMax       int
	outMax      int
	activated   int
	deactivated int
	activateErr error
	submitErr   error // one-shot
	pending     map[*api.Transfer]struct{}
	submits     []*api.Transfer
	maxPending  int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		inMax:   64,
		outMax:  64,
		pending: make(map[*api.Transfer]struct{}),
	}
}

func (m *mockTransport) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activateErr != nil {
		return m.activateErr
	}
	m.activated++
	return nil
}

func (m *mockTransport) Deactivate() {
	m.mu.Lock()
	m.deactivated++
	m.mu.Unlock()
}

func (m *mockTransport) Submit(t *api.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		err := m.submitErr
		m.submitErr = nil
		return err
	}
	m.pending[t] = struct{}{}
	m.submits = append(m.submits, t)
	if n := len(m.pending); n > m.maxPending {
		m.maxPending = n
	}
	return nil
}

func (m *mockTransport) Cancel(t *api.Transfer) {
	m.mu.Lock()
	_, ok := m.pending[t]
	delete(m.pending, t)
	m.mu.Unlock()
	if ok {
		t.Status = api.StatusCanceled
		t.Actual = 0
		t.Complete(t)
	}
}

func (m *mockTransport) MaxTransfer(dir api.Direction) int {
	if dir == api.DirIn {
		return m.inMax
	}
	return m.outMax
}

// complete settles a pending transfer with the given status, copying data
// into the transfer buffer on success.
func (m *mockTransport) complete(t *api.Transfer, st api.Status, data []byte) {
	m.mu.Lock()
	delete(m.pending, t)
	m.mu.Unlock()
	n := 0
	if st == api.StatusOK {
		n = copy(t.Buf, data)
	}
	t.Status = st
	t.Actual = n
	t.Complete(t)
}

func (m *mockTransport) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *mockTransport) pendingByDir(dir api.Direction) []*api.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*api.Transfer
	for t := range m.pending {
		if t.Dir == dir {
			out = append(out, t)
		}
	}
	return out
}

func (m *mockTransport) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submits)
}

func (m *mockTransport) lastSubmit() *api.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.submits) == 0 {
		return nil
	}
	return m.submits[len(m.submits)-1]
}

// waitUntil polls cond until it holds or the timeout elapses.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ReadWaitTimeout = 250 * time.Millisecond
	cfg.DrainTimeout = 100 * time.Millisecond
	return cfg
}

// testAttach builds a registry with one attached mock device and one open
// handle on it.
func testAttach(t *testing.T, cfg *Config, tr *mockTransport) (*Registry, *Session, *Handle) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	r := NewRegistry(nil)
	s, err := r.Attach("mock0", tr, cfg)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	h, err := r.Open("mock0")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return r, s, h
}
