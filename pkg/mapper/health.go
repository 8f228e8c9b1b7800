package mapper

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"
)

// flushQueueReadyLimit is the queue depth above which the mapper reports
// not-ready: flush jobs are piling up faster than the workers drain them.
const flushQueueReadyLimit = 1024

// NewHealthHandler exposes liveness and readiness of a Mapper over the
// standard healthcheck endpoints.
func NewHealthHandler(m *Mapper) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("registry", func() error {
		_, err := m.DumpBuffers()
		return err
	})
	h.AddReadinessCheck("flush-queue", func() error {
		if depth := m.flush.depth(); depth > flushQueueReadyLimit {
			return fmt.Errorf("flush queue depth %d", depth)
		}
		return nil
	})
	return h
}
