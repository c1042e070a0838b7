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

	"github.com/stretchr/testify/assert"

	"github.com/bulkrt/bulkrt/api"
)

func TestErrorLatchEmpty(t *testing.T) {
	var l errorLatch
	assert.NoError(t, l.consume())
}

func TestErrorLatchMapping(t *testing.T) {
	var l errorLatch

	l.set(api.StatusStall)
	assert.ErrorIs(t, l.consume(), ErrBrokenPipe)

	l.set(api.StatusIOError)
	assert.ErrorIs(t, l.consume(), ErrIOFault)

	l.set(api.StatusNoMem)
	assert.ErrorIs(t, l.consume(), ErrIOFault)
}

func TestErrorLatchConsumeClears(t *testing.T) {
	var l errorLatch
	l.set(api.StatusIOError)
	assert.Error(t, l.consume())
	assert.NoError(t, l.consume())
}

func TestErrorLatchOverwrite(t *testing.T) {
	var l errorLatch
	l.set(api.StatusIOError)
	l.set(api.StatusStall)
	assert.ErrorIs(t, l.consume(), ErrBrokenPipe)
	assert.NoError(t, l.consume())
}

func TestErrorLatchConcurrentConsumers(t *testing.T) {
	var l errorLatch
	l.set(api.StatusStall)

	const consumers = 8
	errs := make(chan error, consumers)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.consume()
		}()
	}
	wg.Wait()
	close(errs)

	// Exactly one consumer observes the error.
	failures := 0
	for err := range errs {
		if err != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}
