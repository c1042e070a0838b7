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
	"errors"

	"github.com/bulkrt/bulkrt/api"
)

var (
	// ErrDeviceNotFound means the device was never attached or teardown has
	// already begun. Terminal for the current session instance.
	ErrDeviceNotFound = errors.New("chardev: device not attached")

	// ErrWouldBlock is returned by non-blocking reads and writes that would
	// have to suspend. Retryable.
	ErrWouldBlock = errors.New("chardev: operation would block")

	// ErrTimeout means a bounded wait expired before the pipeline made
	// progress. Retryable.
	ErrTimeout = errors.New("chardev: timeout")

	// ErrBrokenPipe means the transport signaled a stall/halt condition.
	// Terminal for the current session instance.
	ErrBrokenPipe = errors.New("chardev: broken pipe")

	// ErrIOFault is the collapsed form of every other non-benign transport
	// failure.
	ErrIOFault = errors.New("chardev: i/o fault")

	// ErrNoMem means the transport ran out of resources at submission time.
	// Propagated verbatim so callers can back off.
	ErrNoMem = errors.New("chardev: out of memory")

	// ErrInvalidArgument covers degenerate calls such as a zero-length write.
	ErrInvalidArgument = errors.New("chardev: invalid argument")
)

// mapSubmitError recovers a transport submission failure into the session
// error taxonomy. Raw transport errors never reach callers.
func mapSubmitError(err error) error {
	if errors.Is(err, api.ErrTransportNoMem) {
		return ErrNoMem
	}
	return ErrIOFault
}
