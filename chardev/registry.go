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
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bulkrt/bulkrt/api"
)

// Registry maps externally-visible device names to live Sessions. It is the
// explicit replacement for a module-scope driver table: construct one,
// attach transports to it, and open handles through it.
type Registry struct {
	sessions cmap.ConcurrentMap[string, *Session]
	metrics  *Metrics
}

// NewRegistry creates an empty registry. Metrics series register against
// reg; pass nil to keep them unregistered.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return &Registry{
		sessions: cmap.New[*Session](),
		metrics:  newMetrics(reg),
	}
}

// Attach creates a session for a newly connected device and registers it
// under name. The registry holds the session's initial reference until
// Detach. A nil cfg uses DefaultConfig.
func (r *Registry) Attach(name string, tr api.Transport, cfg *Config) (*Session, error) {
	if tr == nil {
		return nil, ErrInvalidArgument
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.LogOutput != nil {
		SetLogOutput(cfg.LogOutput)
	}

	s := newSession(name, tr, cfg, r.metrics)
	if !r.sessions.SetIfAbsent(name, s) {
		return nil, fmt.Errorf("chardev: device %q already attached", name)
	}
	internalLogger.infof("device %s attached (in:%d out:%d writes-in-flight:%d)",
		name, s.inMax, s.outMax, cfg.WritesInFlight)
	return s, nil
}

// Open returns a new Handle on the named device. It activates the transport
// and takes one reference unit; a device mid-teardown reads as not found.
func (r *Registry) Open(name string) (*Handle, error) {
	s, ok := r.sessions.Get(name)
	if !ok {
		return nil, ErrDeviceNotFound
	}
	if err := s.tr.Activate(); err != nil {
		return nil, err
	}
	if !s.tryRef() {
		s.tr.Deactivate()
		return nil, ErrDeviceNotFound
	}
	return &Handle{s: s}, nil
}

// Detach tears the named device down: it flips the liveness flag under the
// I/O lock (no new submissions from here on), drains in-flight transfers,
// and drops the registry's reference. Live readers and writers fail with
// ErrDeviceNotFound; the session memory goes away when the last handle
// closes. Detaching an unknown name is a no-op.
func (r *Registry) Detach(name string) {
	s, ok := r.sessions.Pop(name)
	if !ok {
		return
	}

	// Prevent more I/O from starting.
	s.ioMu.Lock()
	s.alive = false
	s.ioMu.Unlock()

	s.drain()
	internalLogger.infof("device %s detached", name)
	s.unref()
}

// Names lists the currently attached device names.
func (r *Registry) Names() []string { return r.sessions.Keys() }

// Len reports the number of attached devices.
func (r *Registry) Len() int { return r.sessions.Count() }
