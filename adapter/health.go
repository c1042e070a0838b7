// Package adapter integrates the chardev session layer with external
// monitoring systems.
package adapter

import (
	"errors"
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"github.com/bulkrt/bulkrt/chardev"
)

// ErrNoDevices is reported by the readiness probe while no device is
// attached to the registry.
var ErrNoDevices = errors.New("adapter: no devices attached")

// NewHealthHandler returns an HTTP handler exposing /live and /ready probes
// for a device registry. Liveness guards against goroutine leaks; readiness
// reflects whether any device is currently attached.
func NewHealthHandler(r *chardev.Registry, maxGoroutines int) http.Handler {
	if maxGoroutines <= 0 {
		maxGoroutines = 1000
	}
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(maxGoroutines))
	h.AddReadinessCheck("devices-attached", func() error {
		if r.Len() == 0 {
			return ErrNoDevices
		}
		return nil
	})
	return h
}
