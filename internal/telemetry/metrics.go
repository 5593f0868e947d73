// Package telemetry keeps process-local counters for the gateway: tool
// outcomes, transport retries, and token refreshes. It has no exporter; the
// snapshot exists for tests and for a debug line at shutdown.
package telemetry

import (
	"sync"
)

var defaultRegistry = newRegistry()

type registry struct {
	mu             sync.Mutex
	toolOutcomes   map[string]map[string]int64
	retries        map[string]int64
	tokenRefreshes int64
}

func newRegistry() *registry {
	return &registry{
		toolOutcomes: make(map[string]map[string]int64),
		retries:      make(map[string]int64),
	}
}

// IncToolOutcome counts one terminal dispatch outcome for a tool.
func IncToolOutcome(tool, outcome string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolOutcomes[tool]; !ok {
		defaultRegistry.toolOutcomes[tool] = make(map[string]int64)
	}
	defaultRegistry.toolOutcomes[tool][outcome]++
}

// IncRetry counts one retried attempt, keyed by the cause ("429", "5xx",
// "network").
func IncRetry(cause string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.retries[cause]++
}

// IncTokenRefresh counts one installation-token exchange.
func IncTokenRefresh() {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.tokenRefreshes++
}

// Snapshot is a copy of all counters at one instant.
type Snapshot struct {
	ToolOutcomes   map[string]map[string]int64
	Retries        map[string]int64
	TokenRefreshes int64
}

func Snap() Snapshot {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	s := Snapshot{
		ToolOutcomes:   make(map[string]map[string]int64, len(defaultRegistry.toolOutcomes)),
		Retries:        make(map[string]int64, len(defaultRegistry.retries)),
		TokenRefreshes: defaultRegistry.tokenRefreshes,
	}
	for tool, outcomes := range defaultRegistry.toolOutcomes {
		s.ToolOutcomes[tool] = make(map[string]int64, len(outcomes))
		for outcome, n := range outcomes {
			s.ToolOutcomes[tool][outcome] = n
		}
	}
	for cause, n := range defaultRegistry.retries {
		s.Retries[cause] = n
	}
	return s
}

// Reset clears all counters. Tests only.
func Reset() {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.toolOutcomes = make(map[string]map[string]int64)
	defaultRegistry.retries = make(map[string]int64)
	defaultRegistry.tokenRefreshes = 0
}
