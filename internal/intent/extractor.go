// Package intent parses speech transcripts into structured commands.
//
// The extractor is a pure function of the transcript and the grammar tables:
// it never mutates session state and never calls out to a backend. Anything
// the grammar cannot classify becomes a free_form command with low confidence
// rather than an error.
package intent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// freeFormConfidence is assigned when no grammar rule matches.
const freeFormConfidence = 0.3

// Extractor turns transcripts into Commands using the closed grammar.
type Extractor struct {
	// upstreamWeight scales the recognizer's own confidence into the
	// command confidence when provided.
	upstreamWeight float64
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{upstreamWeight: 0.5}
}

// Extract classifies a transcript into a Command for the given session.
// upstreamConfidence is the speech recognizer's confidence in the transcript,
// or a negative value when the recognizer did not report one.
//
// The only failure mode is models.ErrExtraction for empty or non-textual
// input; every other transcript yields a Command.
func (e *Extractor) Extract(sessionID, transcript string, upstreamConfidence float64) (models.Command, error) {
	raw := strings.TrimSpace(transcript)
	if raw == "" {
		return models.Command{}, fmt.Errorf("empty transcript: %w", models.ErrExtraction)
	}
	if !hasText(raw) {
		return models.Command{}, fmt.Errorf("transcript %q has no words: %w", raw, models.ErrExtraction)
	}

	normalized := normalize(raw)

	in := models.IntentFreeForm
	confidence := freeFormConfidence
	if r, ok := matchGrammar(normalized); ok {
		in = r.intent
		confidence = r.confidence
	}

	entities := extractEntities(in, raw, normalized)

	// Blend in the recognizer's confidence when it reported one: a grammar
	// hit on a garbled transcript should still route to clarification.
	if upstreamConfidence >= 0 && upstreamConfidence <= 1 {
		confidence = confidence*(1-e.upstreamWeight) + upstreamConfidence*e.upstreamWeight
	}

	return models.NewCommand(sessionID, raw, in, entities, confidence), nil
}

// normalize lowercases and collapses whitespace and trailing punctuation so
// grammar rules can anchor on phrase boundaries.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimRight(s, ".!?,;: ")
	return strings.Join(strings.Fields(s), " ")
}

// hasText reports whether the transcript contains at least one letter or digit.
func hasText(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
