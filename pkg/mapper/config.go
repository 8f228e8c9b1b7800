package mapper

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config holds Mapper creation parameters.
type Config struct {
	// LockWaitTimeout bounds how long Lock waits on an unsignaled acquire
	// fence before giving up with ErrNoResources.
	LockWaitTimeout time.Duration

	// MaxImportedBuffers caps live imports process-wide; exceeding it
	// makes ImportBuffer return ErrNoResources.
	MaxImportedBuffers int

	// FlushWorkerCount sizes the pool that runs cache-flush jobs and
	// signals release fences.
	FlushWorkerCount int

	// Meter and Tracer enable OpenTelemetry instrumentation when set.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultConfig returns a config suitable for most callers.
func DefaultConfig() *Config {
	return &Config{
		LockWaitTimeout:    3 * time.Second,
		MaxImportedBuffers: 4096,
		FlushWorkerCount:   2,
	}
}

// VerifyConfig checks c before a Mapper is built around it.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.LockWaitTimeout <= 0 {
		return fmt.Errorf("LockWaitTimeout %v, must be positive", c.LockWaitTimeout)
	}
	if c.MaxImportedBuffers <= 0 {
		return fmt.Errorf("MaxImportedBuffers %d, must be positive", c.MaxImportedBuffers)
	}
	if c.FlushWorkerCount <= 0 {
		return fmt.Errorf("FlushWorkerCount %d, must be positive", c.FlushWorkerCount)
	}
	return nil
}
