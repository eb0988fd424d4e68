package system

import (
	"context"
)

// Service represents a lifecycle-managed component. All engine modules
// must implement this interface so the orchestrator can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// LifecycleService is the common contract for orchestrator-managed services
// that expose readiness. The Sampler, Retention Store, Alert Engine and
// Recovery/Failover Engines implement this so they can be wired into the
// Manager and surfaced consistently via CLI status; the Validator does not.
type LifecycleService interface {
	Service
	Ready(ctx context.Context) error
}
