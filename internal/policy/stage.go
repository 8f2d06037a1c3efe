package policy

import "time"

// DecisionInput is what StageAuthorized needs about the decider and the
// request's history to authorize a stage decision.
type DecisionInput struct {
	Stage             Stage
	ApprovalType      string
	MakerID           string
	PreviousApprovers []string
	DeciderID         string
	DeciderRole       string
	Now               time.Time
	Delegations       []Delegation
}

// AuthDecision is the outcome of StageAuthorized plus the reason, for audit.
type AuthDecision struct {
	Allowed bool
	Reason  string
}

// StageAuthorized runs the five-step stage authorization check from §4.6,
// in order, short-circuiting at the first decisive step.
func StageAuthorized(in DecisionInput) AuthDecision {
	if in.Stage.ExcludeMaker && in.DeciderID == in.MakerID {
		return AuthDecision{Allowed: false, Reason: "decider is the maker"}
	}
	if in.Stage.ExcludePreviousApprovers && containsString(in.PreviousApprovers, in.DeciderID) {
		return AuthDecision{Allowed: false, Reason: "decider already approved an earlier stage"}
	}

	roleOK := len(in.Stage.AllowedRoles) == 0 || containsString(in.Stage.AllowedRoles, in.DeciderRole)
	actorOK := len(in.Stage.AllowedActorIDs) == 0 || containsString(in.Stage.AllowedActorIDs, in.DeciderID)
	if roleOK && actorOK {
		return AuthDecision{Allowed: true, Reason: "decider authorized directly"}
	}

	for _, d := range in.Delegations {
		if d.Grants(in.Now, in.ApprovalType, in.DeciderID, in.Stage.AllowedRoles, in.Stage.AllowedActorIDs) {
			return AuthDecision{Allowed: true, Reason: "decider authorized via delegation"}
		}
	}

	return AuthDecision{Allowed: false, Reason: "decider lacks required role, actor binding, or delegation"}
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
