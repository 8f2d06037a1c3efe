package intercept

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeOpener struct {
	requestID   string
	totalStages int
	called      bool
	lastType    string
}

func (f *fakeOpener) OpenIntercepted(ctx context.Context, approvalType, payloadJSON, makerID, makerRole, correlationID string, expiryMinutes *int) (string, int, error) {
	f.called = true
	f.lastType = approvalType
	return f.requestID, f.totalStages, nil
}

func TestInterceptPassesThroughWithoutBinding(t *testing.T) {
	registry := NewRegistry(nil)
	opener := &fakeOpener{}
	decision, err := Intercept(context.Background(), registry, opener, http.MethodPost, "/tx/transfer", map[string]interface{}{}, "{}", "maker-1", "AGENT", "corr-1", nil)
	require.NoError(t, err)
	require.False(t, decision.Intercepted)
	require.False(t, opener.called)
}

func TestInterceptOpensApprovalRequestForActiveBinding(t *testing.T) {
	registry := NewRegistry([]Binding{
		{RoutePattern: "/tx/reversal/request", HTTPMethod: http.MethodPost, ApprovalType: "REVERSAL_REQUESTED", Active: true},
	})
	opener := &fakeOpener{requestID: "req-1", totalStages: 2}
	decision, err := Intercept(context.Background(), registry, opener, http.MethodPost, "/tx/reversal/request", map[string]interface{}{}, "{}", "maker-1", "AGENT", "corr-2", nil)
	require.NoError(t, err)
	require.True(t, decision.Intercepted)
	require.Equal(t, "req-1", decision.RequestID)
	require.Equal(t, 2, decision.TotalStages)
	require.Equal(t, "REVERSAL_REQUESTED", opener.lastType)
}

func TestInterceptIgnoresInactiveBinding(t *testing.T) {
	registry := NewRegistry([]Binding{
		{RoutePattern: "/tx/reversal/request", HTTPMethod: http.MethodPost, ApprovalType: "REVERSAL_REQUESTED", Active: false},
	})
	opener := &fakeOpener{}
	decision, err := Intercept(context.Background(), registry, opener, http.MethodPost, "/tx/reversal/request", map[string]interface{}{}, "{}", "maker-1", "AGENT", "corr-3", nil)
	require.NoError(t, err)
	require.False(t, decision.Intercepted)
}

func TestInterceptRejectsMissingReasonWhenRequired(t *testing.T) {
	registry := NewRegistry([]Binding{
		{RoutePattern: "/tx/adjustment", HTTPMethod: http.MethodPost, ApprovalType: "MANUAL_ADJUSTMENT", Active: true, RequireReason: true},
	})
	opener := &fakeOpener{}
	_, err := Intercept(context.Background(), registry, opener, http.MethodPost, "/tx/adjustment", map[string]interface{}{}, "{}", "maker-1", "AGENT", "corr-4", nil)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestInterceptAllowsReasonPresent(t *testing.T) {
	registry := NewRegistry([]Binding{
		{RoutePattern: "/tx/adjustment", HTTPMethod: http.MethodPost, ApprovalType: "MANUAL_ADJUSTMENT", Active: true, RequireReason: true},
	})
	opener := &fakeOpener{requestID: "req-2", totalStages: 1}
	decision, err := Intercept(context.Background(), registry, opener, http.MethodPost, "/tx/adjustment", map[string]interface{}{"reason": "fraud hold"}, `{"reason":"fraud hold"}`, "maker-1", "AGENT", "corr-5", nil)
	require.NoError(t, err)
	require.True(t, decision.Intercepted)
}

func TestMiddlewareReturns202ForInterceptedRoute(t *testing.T) {
	registry := NewRegistry([]Binding{
		{RoutePattern: "/tx/reversal/request", HTTPMethod: http.MethodPost, ApprovalType: "REVERSAL_REQUESTED", Active: true},
	})
	opener := &fakeOpener{requestID: "req-3", totalStages: 1}
	handlerCalled := false

	r := chi.NewRouter()
	r.With(Middleware(registry, opener,
		func(ctx context.Context) (string, string) { return "maker-1", "AGENT" },
		func(r *http.Request) string { return "corr-6" },
	)).Post("/tx/reversal/request", func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/tx/reversal/request", bytes.NewBufferString(`{"original_journal_id":"j1"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.False(t, handlerCalled)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["approval_required"])
	require.Equal(t, "req-3", body["request_id"])
}

func TestMiddlewarePassesThroughUnboundRoute(t *testing.T) {
	registry := NewRegistry(nil)
	opener := &fakeOpener{}
	handlerCalled := false

	r := chi.NewRouter()
	r.With(Middleware(registry, opener,
		func(ctx context.Context) (string, string) { return "maker-1", "AGENT" },
		func(r *http.Request) string { return "corr-7" },
	)).Post("/tx/transfer", func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/tx/transfer", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, handlerCalled)
}
