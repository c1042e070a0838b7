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
	"io"
	"time"
)

const (
	defaultWritesInFlight  = 8
	defaultDrainTimeout    = time.Second
	defaultReadWaitTimeout = 5 * time.Second

	// Conventional first bulk-in / bulk-out endpoint addresses.
	defaultInEndpoint  = 0x81
	defaultOutEndpoint = 0x02
)

// Config holds per-device session parameters.
type Config struct {
	// WritesInFlight caps the number of concurrently submitted outbound
	// transfers. 1 serializes writes onto a single in-flight transfer.
	WritesInFlight int

	// DrainTimeout bounds how long teardown waits for anchored transfers
	// to complete before force-canceling them.
	DrainTimeout time.Duration

	// ReadWaitTimeout bounds a blocking read's wait for an outstanding
	// inbound transfer. On expiry the read fails with ErrTimeout and may
	// be retried.
	ReadWaitTimeout time.Duration

	// InEndpoint and OutEndpoint are opaque endpoint addresses passed
	// through to the transport on every transfer.
	InEndpoint  uint8
	OutEndpoint uint8

	// LogOutput redirects the internal logger when non-nil.
	LogOutput io.Writer

	// OnRelease runs synchronously when the session's last reference is
	// released, after the owned buffers have been freed.
	OnRelease func()
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() *Config {
	return &Config{
		WritesInFlight:  defaultWritesInFlight,
		DrainTimeout:    defaultDrainTimeout,
		ReadWaitTimeout: defaultReadWaitTimeout,
		InEndpoint:      defaultInEndpoint,
		OutEndpoint:     defaultOutEndpoint,
	}
}

// VerifyConfig checks that c is usable for Attach.
func VerifyConfig(c *Config) error {
	if c.WritesInFlight < 1 {
		return errors.New("chardev: WritesInFlight must be at least 1")
	}
	if c.DrainTimeout <= 0 {
		return errors.New("chardev: DrainTimeout must be positive")
	}
	if c.ReadWaitTimeout <= 0 {
		return errors.New("chardev: ReadWaitTimeout must be positive")
	}
	return nil
}
