package orchestrator

import (
	"context"

	"mina/internal/sessions"
	"mina/internal/stage"
)

// HealthCheck reports the readiness of every registered stage handler in
// canonical stage order.
func (o *Orchestrator) HealthCheck(ctx context.Context) []stage.Health {
	checks := make([]stage.Health, 0, len(o.handlers))
	for _, kind := range sessions.StageKinds() {
		handler, ok := o.handlers[kind]
		if !ok {
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}
