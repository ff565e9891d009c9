package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted from domain logic to capture key dossier actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	ActorID   string
	DossierID uuid.UUID
	Action    string
	Detail    string
}

// Actions recorded over a dossier's lifecycle.
const (
	ActionDossierCreated       = "dossier_created"
	ActionStepAdvanced         = "step_advanced"
	ActionDocumentsAppended    = "documents_appended"
	ActionPaymentIntentCreated = "payment_intent_created"
	ActionPaymentConfirmed     = "payment_confirmed"
	ActionDossierCompleted     = "dossier_completed"
	ActionAdminOverride        = "admin_override"
)
