package intercept

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RequestOpener opens an ApprovalRequest for an intercepted call. It is
// satisfied by a thin adapter over approval.Engine.Open so this package
// never imports approval directly.
type RequestOpener interface {
	OpenIntercepted(ctx context.Context, approvalType, payloadJSON, makerID, makerRole, correlationID string, expiryMinutes *int) (requestID string, totalStages int, err error)
}

// Decision is the outcome of Intercept.
type Decision struct {
	Intercepted bool
	RequestID   string
	TotalStages int
}

// ValidationError is returned when require_reason is set and the payload
// lacks a reason field (§4.8).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Intercept implements §4.8: if an active binding exists for
// (method, pattern), validate require_reason against the payload, open an
// ApprovalRequest, and report interception. A non-intercepted call
// returns a zero Decision so the caller proceeds with normal execution.
func Intercept(ctx context.Context, registry *Registry, opener RequestOpener, method, pattern string, payload map[string]interface{}, payloadJSON, makerID, makerRole, correlationID string, expiryMinutes *int) (Decision, error) {
	binding, ok := registry.Lookup(method, pattern)
	if !ok {
		return Decision{}, nil
	}

	if binding.RequireReason {
		reason, _ := payload["reason"].(string)
		if reason == "" {
			return Decision{}, &ValidationError{Message: "VALIDATION_ERROR: reason is required for this operation"}
		}
	}

	requestID, totalStages, err := opener.OpenIntercepted(ctx, binding.ApprovalType, payloadJSON, makerID, makerRole, correlationID, expiryMinutes)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Intercepted: true, RequestID: requestID, TotalStages: totalStages}, nil
}

// ActorResolver extracts the maker's identity from an authenticated
// request's context, populated upstream by the auth middleware.
type ActorResolver func(ctx context.Context) (makerID, makerRole string)

// CorrelationResolver extracts (or generates) the request's correlation id.
type CorrelationResolver func(r *http.Request) string

// Middleware wraps chi routes so any route carrying an active
// EndpointBinding is converted into an ApprovalRequest instead of
// reaching the wrapped handler, per §4.8. Routes without a binding pass
// through untouched.
func Middleware(registry *Registry, opener RequestOpener, resolveActor ActorResolver, resolveCorrelation CorrelationResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rctx := chi.RouteContext(r.Context())
			pattern := ""
			if rctx != nil {
				pattern = rctx.RoutePattern()
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var payload map[string]interface{}
			if len(body) > 0 {
				_ = json.Unmarshal(body, &payload)
			}
			if payload == nil {
				payload = map[string]interface{}{}
			}

			makerID, makerRole := resolveActor(r.Context())
			correlationID := resolveCorrelation(r)

			decision, err := Intercept(r.Context(), registry, opener, r.Method, pattern, payload, string(body), makerID, makerRole, correlationID, nil)
			if err != nil {
				if ve, ok := err.(*ValidationError); ok {
					writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": ve.Message})
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if decision.Intercepted {
				writeJSON(w, http.StatusAccepted, map[string]interface{}{
					"approval_required": true,
					"request_id":        decision.RequestID,
					"total_stages":      decision.TotalStages,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
