// Package metrics defines the metrics interfaces the reassembly engine and
// its collaborators accept, plus the Prometheus registry lifecycle
// (InitRegistry/IsEnabled/GetRegistry) those interfaces' constructors need.
//
// Concrete collectors live in pkg/metrics/prometheus and register their
// constructors here at init time (Register*Constructor), the same
// interface-indirection idiom the teacher uses in pkg/metrics/cache.go to
// let pkg/metrics stay free of a direct prometheus import while the
// engine's own packages only ever import this one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the Prometheus registry metrics are collected into.
// Must be called before any New*Metrics constructor for that constructor to
// return a non-nil collector; calling it a second time replaces the
// registry (existing collectors keep referencing the old one, so this is
// meant to be called once at process startup, not mid-run).
func InitRegistry() *prometheus.Registry {
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called. Every New*Metrics
// constructor checks this first and returns nil when false, so passing that
// nil metrics collector on to the engine costs it nothing beyond a nil
// check per call.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the current Prometheus registry, or nil if
// InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Reset disables metrics collection and drops the registry. Exposed for
// tests that need a clean slate between cases.
func Reset() {
	registry = nil
	enabled = false
}
