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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulkrt/bulkrt/api"
)

func TestCanWriteAlwaysReady(t *testing.T) {
	tr := newMockTransport()
	r, _, h := testAttach(t, nil, tr)

	// Writability reflects the short-write contract, not limiter slack.
	require.True(t, h.CanWrite())
	r.Detach("mock0")
	require.True(t, h.CanWrite())
	require.NoError(t, h.Close())
}

func TestCanReadKicksOffTransfer(t *testing.T) {
	tr := newMockTransport()
	_, _, h := testAttach(t, nil, tr)

	// Idle with an empty buffer: not readable, but a transfer goes out so
	// readability can materialize without a read call.
	require.False(t, h.CanRead())
	require.Equal(t, 1, tr.submitCount())

	// Polling again while that transfer is pending submits nothing new.
	require.False(t, h.CanRead())
	require.Equal(t, 1, tr.submitCount())

	tr.complete(tr.lastSubmit(), api.StatusOK, []byte("ready"))
	require.True(t, h.CanRead())
	require.Equal(t, 1, tr.submitCount())

	n, err := h.Read(make([]byte, 16))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.False(t, h.CanRead())
	require.Equal(t, 2, tr.submitCount())
}

func TestCanReadAfterDetach(t *testing.T) {
	tr := newMockTransport()
	r, _, h := testAttach(t, nil, tr)

	r.Detach("mock0")
	require.False(t, h.CanRead())
	require.Equal(t, 0, tr.submitCount())
	require.NoError(t, h.Close())
}
