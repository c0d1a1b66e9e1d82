package stage

import (
	"context"
	"encoding/json"

	"mina/internal/sessions"
)

// Handler describes the contract the orchestrator needs from each
// enrichment stage. Execute returns the JSON payload carried by the
// stage's ready event and persisted as the stage result.
type Handler interface {
	Kind() sessions.StageKind
	Execute(context.Context, *sessions.Session) (json.RawMessage, error)
	HealthCheck(context.Context) Health
}
