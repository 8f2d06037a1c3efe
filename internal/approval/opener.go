package approval

import (
	"context"

	"caricash/internal/policy"
)

// InterceptOpener adapts Engine to intercept.RequestOpener so the HTTP
// layer's interceptor never imports the approval package's full surface.
type InterceptOpener struct {
	Engine  *Engine
	Matcher func(ctx context.Context, approvalType, payloadJSON string) policy.MatchResult
}

// OpenIntercepted implements intercept.RequestOpener.
func (o *InterceptOpener) OpenIntercepted(ctx context.Context, approvalType, payloadJSON, makerID, makerRole, correlationID string, expiryMinutes *int) (string, int, error) {
	match := o.Matcher(ctx, approvalType, payloadJSON)
	req, err := o.Engine.Open(ctx, approvalType, payloadJSON, makerID, makerRole, correlationID, match, expiryMinutes)
	if err != nil {
		return "", 0, err
	}
	return req.ID, req.TotalStages, nil
}
