package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"caricash/internal/approval"
)

// Handlers wires fraud-rules governance into the approval workflow engine.
type Handlers struct {
	Store *Store
}

// NewHandlers constructs the governed fraud handlers.
func NewHandlers(store *Store) *Handlers {
	return &Handlers{Store: store}
}

// Register binds the FRAUD_RULES_ACTIVATION approval type to Activate, so
// promoting a rules version to ACTIVE runs through the same maker-checker
// workflow every other governed action does (§4.11).
func (h *Handlers) Register(reg *approval.Registry) {
	reg.Register("FRAUD_RULES_ACTIVATION", approval.Handler{
		Label:               "fraud_rules_activation",
		AllowedCheckerRoles: []string{"FRAUD_ANALYST", "COMPLIANCE_OFFICER"},
		OnApprove:           h.Activate,
		EventNames:          []string{"fraud.rules_version.activated"},
		AuditActions:        []string{"FRAUD_RULES_VERSION_ACTIVATED"},
	})
}

type activationPayload struct {
	VersionID string `json:"version_id"`
}

// Activate is the OnApprove side effect: it promotes the requested rules
// version to ACTIVE, recording the deciding checker as approved_by.
func (h *Handlers) Activate(ctx approval.Context) error {
	var payload activationPayload
	if err := json.Unmarshal([]byte(ctx.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("fraud: decode activation payload: %w", err)
	}
	if payload.VersionID == "" {
		return fmt.Errorf("fraud: activation payload missing version_id")
	}
	approvedBy := ctx.Request.MakerID
	for _, d := range ctx.Decisions {
		if d.Decision == approval.DecisionApprove {
			approvedBy = d.DeciderID
		}
	}
	return h.Store.ActivateVersion(context.Background(), payload.VersionID, approvedBy, time.Now().UTC())
}
