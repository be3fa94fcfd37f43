// Package session owns the lifecycle of one audio session:
//   - the session-level AudioSpec preferences and their latency mapping
//   - device selection through a devices.Manager
//   - the engine, created on Start and torn down on Stop
//
// A Session is also the graph.Configurer that prepares the engine before the
// output node of a graph changes.
//
// Consumers can attach a MetricsHook to observe engine starts and configure
// failures.
package session
