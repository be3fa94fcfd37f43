package session

import "time"

// MetricsHook allows callers to observe key events and durations in the session.
// Implementers can log, aggregate metrics, or emit traces.
type MetricsHook interface {
	// Engine lifecycle
	OnEngineStart(duration time.Duration, err error)
	OnEngineStop(uptime time.Duration)

	// Configure runs before every output change
	OnConfigure(err error)
}
