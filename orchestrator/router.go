package orchestrator

import "context"

// ConfidenceThreshold is the minimum oracle confidence for auto-fill.
// Anything below it escalates to a human.
const ConfidenceThreshold = 0.6

// Answer is what the oracle returns for one question.
type Answer struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Oracle maps an application question to an answer with a confidence score.
// It must never be assumed fast; callers bound it with the context.
type Oracle interface {
	Ask(ctx context.Context, question, jobContext string) (Answer, error)
}

// NeedsHuman is the threshold routing decision: a pure function of the
// confidence score.
func NeedsHuman(confidence float64) bool {
	return confidence < ConfidenceThreshold
}
