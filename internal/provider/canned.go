package provider

import (
	"context"
	"strings"
)

// CannedAdapter answers from a small static table. It backs degraded-mode
// deployments and sits last in the fallback chain where operators want a
// guaranteed spoken answer over silence.
type CannedAdapter struct {
	fallback string
}

var _ Adapter = (*CannedAdapter)(nil)

// cannedConfidence sits above the default floor but below the clarification
// threshold, so canned answers win a race only when nothing better exists
// and still read as tentative downstream.
const cannedConfidence = 0.55

// NewCanned creates the static-answer adapter.
func NewCanned() *CannedAdapter {
	return &CannedAdapter{
		fallback: "I can log that for the maintenance team to review. Anything else?",
	}
}

// Name returns the provider identifier.
func (a *CannedAdapter) Name() string {
	return "canned"
}

// Generate matches a few common maintenance question shapes and otherwise
// returns a safe acknowledgement. It still honors cancellation so a lost
// race discards it like any other adapter.
func (a *CannedAdapter) Generate(ctx context.Context, prompt Prompt) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}

	lower := strings.ToLower(prompt.User)
	text := a.fallback
	switch {
	case strings.Contains(lower, "status"):
		text = "I couldn't reach the status service just now. The request has been noted."
	case strings.Contains(lower, "why") || strings.Contains(lower, "how"):
		text = "I can't look that up right now, but I've noted the question for follow-up."
	}

	return Generation{Text: text, Confidence: cannedConfidence}, nil
}
