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
	"time"

	"github.com/Workiva/go-datastructures/set"
	"github.com/cenkalti/backoff/v4"

	"github.com/bulkrt/bulkrt/api"
)

var errTransfersAnchored = errors.New("chardev: transfers still anchored")

// anchorSet tracks outbound transfers submitted to the transport but not
// yet completed. It exists purely for bulk cancellation during teardown;
// flow control is the limiter's job. Every transfer leaves the set exactly
// once, on completion or on forced cancellation.
type anchorSet struct {
	pending *set.Set
}

func newAnchorSet() *anchorSet {
	return &anchorSet{pending: set.New()}
}

func (a *anchorSet) add(t *api.Transfer)    { a.pending.Add(t) }
func (a *anchorSet) remove(t *api.Transfer) { a.pending.Remove(t) }
func (a *anchorSet) len() int64             { return a.pending.Len() }
func (a *anchorSet) empty() bool            { return a.pending.Len() == 0 }

// cancelAll force-kills every anchored transfer. Transport.Cancel is
// synchronous, so completions (which remove the transfer from the set and
// release limiter units) have run by the time this returns.
func (a *anchorSet) cancelAll(tr api.Transport) {
	for _, item := range a.pending.Flatten() {
		tr.Cancel(item.(*api.Transfer))
	}
}

// waitEmpty polls until the set drains or timeout elapses, backing off
// exponentially between checks. Returns true if the set emptied in time.
func (a *anchorSet) waitEmpty(timeout time.Duration) bool {
	if a.empty() {
		return true
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		if a.empty() {
			return nil
		}
		return errTransfersAnchored
	}, bo)
	return err == nil
}
