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

	"github.com/bulkrt/bulkrt/api"
)

// errorLatch is a single-slot sticky error shared by the read and write
// paths. A newer completion overwrites an unread older one; consuming the
// slot clears it, so each latched error is surfaced to exactly one caller.
//
// The lock is held only for O(1) field updates and is safe to take from the
// completion-notification context.
type errorLatch struct {
	mu     sync.Mutex
	status api.Status // StatusOK when empty
}

func (l *errorLatch) set(st api.Status) {
	l.mu.Lock()
	l.status = st
	l.mu.Unlock()
}

// consume takes the latched status, clears the slot, and maps it into the
// caller-facing taxonomy: a stall is reported distinctly so callers can
// clear it, everything else collapses to a generic fault.
func (l *errorLatch) consume() error {
	l.mu.Lock()
	st := l.status
	l.status = api.StatusOK
	l.mu.Unlock()

	switch st {
	case api.StatusOK:
		return nil
	case api.StatusStall:
		return ErrBrokenPipe
	default:
		return ErrIOFault
	}
}
