// Package models defines the core data types shared across the voice pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Intent is the closed-set category of what a spoken command asks for.
type Intent string

const (
	IntentCreateTask       Intent = "create_task"
	IntentQueryStatus      Intent = "query_status"
	IntentStartProcedure   Intent = "start_procedure"
	IntentNavigateNext     Intent = "navigate_next"
	IntentNavigateRepeat   Intent = "navigate_repeat"
	IntentNavigateComplete Intent = "navigate_complete"
	IntentNavigateCancel   Intent = "navigate_cancel"
	IntentCloseSession     Intent = "close_session"
	IntentFreeForm         Intent = "free_form"
)

// IsNavigation reports whether the intent drives the procedure state machine
// rather than the generative path.
func (i Intent) IsNavigation() bool {
	switch i {
	case IntentStartProcedure, IntentNavigateNext, IntentNavigateRepeat,
		IntentNavigateComplete, IntentNavigateCancel:
		return true
	}
	return false
}

// Well-known entity keys produced by the extractor.
const (
	EntityAssetID   = "asset_id"
	EntityPriority  = "priority"
	EntityProcedure = "procedure"
	EntityQuery     = "query"
)

// Command is the structured form of one spoken utterance.
// Immutable once created: the pipeline passes it by value and never edits it.
type Command struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Transcript string            `json:"transcript"`
	Intent     Intent            `json:"intent"`
	Entities   map[string]string `json:"entities,omitempty"`
	Confidence float64           `json:"confidence"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewCommand builds a Command with a fresh ID and timestamp.
// The entity map is copied so later mutation by the caller cannot leak in.
func NewCommand(sessionID, transcript string, intent Intent, entities map[string]string, confidence float64) Command {
	var copied map[string]string
	if len(entities) > 0 {
		copied = make(map[string]string, len(entities))
		for k, v := range entities {
			copied[k] = v
		}
	}
	return Command{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Transcript: transcript,
		Intent:     intent,
		Entities:   copied,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

// Entity returns the named entity value, or "" if absent.
func (c Command) Entity(key string) string {
	return c.Entities[key]
}
