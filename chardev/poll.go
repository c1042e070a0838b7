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

// CanWrite reports write readiness for event-notification callers. Writes
// are accepted speculatively subject to the limiter, so this is always
// true.
func (h *Handle) CanWrite() bool { return true }

// CanRead reports whether buffered unread bytes exist. Queried while the
// pipeline is empty and idle, it starts a new inbound transfer as a side
// effect so a later query can become ready.
func (h *Handle) CanRead() bool {
	s := h.s
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if !s.alive || s.inMax <= 0 {
		return false
	}

	s.rp.mu.Lock()
	requesting := s.rp.requesting
	avail := s.rp.filled - s.rp.consumed
	s.rp.mu.Unlock()

	if requesting {
		return false
	}
	if avail > 0 {
		return true
	}
	// Empty and idle: kick off the refill, best effort.
	if err := s.submitRead(len(s.rp.buf)); err != nil {
		internalLogger.debugf("device %s: poll-triggered read failed: %v", s.name, err)
	}
	return false
}
