// Package standby defines the StandbyManager collaborator contract
// (spec.md §6) and provides an in-process reference implementation usable
// in tests and single-process deployments. Production deployments are
// expected to supply their own StandbyManager backed by a real topology
// watcher; this package exists so the Failover/Recovery Engine has a
// concrete type to exercise during development.
package standby

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/R3E-Network/service_layer/infrastructure/state"
)

// Status is the closed enumeration of component health states.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// SyncStatus describes replication lag for components that track it.
type SyncStatus struct {
	LagSeconds float64 `json:"lag_seconds"`
}

// Health is the per-component health record the StandbyManager tracks and
// the Failover Engine reads conditions against.
type Health struct {
	Component           string      `json:"component"`
	Status              Status      `json:"status"`
	ResponseTimeMS       int64      `json:"response_time_ms"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	Sync                 *SyncStatus `json:"sync,omitempty"`
	CheckedAt            time.Time  `json:"checked_at"`
}

// FailoverResult is the outcome of a manual or automated failover request.
type FailoverResult struct {
	Target    string    `json:"target"`
	Succeeded bool      `json:"succeeded"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// HealthListener is invoked whenever a component's health record changes.
type HealthListener func(component string, health Health)

// Manager is the StandbyManager collaborator contract spec.md §6 defines:
// it emits health/sync change events, answers point-in-time health
// queries, and executes manual failovers.
type Manager interface {
	// GetComponentHealth returns the most recently observed health record
	// for a component, or nil if the component is unknown.
	GetComponentHealth(name string) *Health

	// OnHealthChecked registers a listener invoked on every health update.
	OnHealthChecked(listener HealthListener)

	// ManualFailover forces a failover of target for the given reason.
	ManualFailover(ctx context.Context, target, reason string) (FailoverResult, error)
}

// InProcessManager is a reference Manager backed by
// infrastructure/state's PersistentState over a MemoryBackend: health
// records are JSON-encoded and round-tripped through the same
// Save/Load/key-prefix discipline a durable backend would use, so swapping
// in a real persistence layer later is a Config.Backend change, not a
// rewrite. Tests and single-process deployments populate it directly with
// SetHealth; a real deployment's topology watcher would call SetHealth
// from its own event loop instead.
type InProcessManager struct {
	mu        sync.RWMutex
	store     *state.PersistentState
	listeners []HealthListener
}

// NewInProcessManager returns an empty in-process StandbyManager.
func NewInProcessManager() *InProcessManager {
	store, err := state.NewPersistentState(state.Config{
		Backend:   state.NewMemoryBackend(0),
		KeyPrefix: "standby:health:",
		MaxSize:   64 * 1024,
	})
	if err != nil {
		// NewPersistentState only fails on a nil Backend, which is never
		// the case here; a panic would indicate a programming error.
		panic(err)
	}
	return &InProcessManager{store: store}
}

// SetHealth records a new health observation for a component and notifies
// registered listeners.
func (m *InProcessManager) SetHealth(h Health) {
	if h.CheckedAt.IsZero() {
		h.CheckedAt = time.Now().UTC()
	}

	data, err := json.Marshal(h)
	if err != nil {
		return
	}

	m.mu.Lock()
	_ = m.store.Save(context.Background(), h.Component, data)
	listeners := append([]HealthListener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(h.Component, h)
	}
}

// GetComponentHealth implements Manager.
func (m *InProcessManager) GetComponentHealth(name string) *Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.store.Load(context.Background(), name)
	if err != nil {
		return nil
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil
	}
	return &h
}

// OnHealthChecked implements Manager.
func (m *InProcessManager) OnHealthChecked(listener HealthListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// ManualFailover implements Manager. The in-process reference simply marks
// the target healthy again and returns success; it exists so the CLI's
// `failover <component> <reason>` passthrough and the Failover Engine's
// failover-component action have something concrete to call in tests.
func (m *InProcessManager) ManualFailover(ctx context.Context, target, reason string) (FailoverResult, error) {
	select {
	case <-ctx.Done():
		return FailoverResult{}, ctx.Err()
	default:
	}

	result := FailoverResult{Target: target, Succeeded: true, Reason: reason, At: time.Now().UTC()}

	m.mu.Lock()
	if data, err := m.store.Load(ctx, target); err == nil {
		var h Health
		if err := json.Unmarshal(data, &h); err == nil {
			h.Status = StatusHealthy
			h.ConsecutiveFailures = 0
			h.CheckedAt = result.At
			if encoded, err := json.Marshal(h); err == nil {
				_ = m.store.Save(ctx, target, encoded)
			}
		}
	}
	m.mu.Unlock()

	return result, nil
}
