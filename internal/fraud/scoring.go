package fraud

import "context"

// ScoringProvider is the pluggable ML scoring collaborator (§4.11, §6):
// invoked before rule evaluation so its score is available to rules as the
// "score" condition field.
type ScoringProvider interface {
	Score(ctx context.Context, fctx Context) (ScoreResult, error)
}

// NoopScoringProvider always returns a zero score; it is the default when
// no external scoring endpoint is configured.
type NoopScoringProvider struct{}

func (NoopScoringProvider) Score(context.Context, Context) (ScoreResult, error) {
	return ScoreResult{}, nil
}
