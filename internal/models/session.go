package models

import "time"

// SessionState enumerates the procedure lifecycle of a voice session.
type SessionState string

const (
	StateIdle                 SessionState = "idle"
	StateInProcedure          SessionState = "in_procedure"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateClosed               SessionState = "closed"
)

// AssetContext caches the descriptor of the asset a session is working on.
// The cache lives only as long as the session.
type AssetContext struct {
	AssetID    string           `json:"asset_id"`
	Descriptor *AssetDescriptor `json:"descriptor,omitempty"`
}

// AssetDescriptor is the result of an external asset/QR lookup.
type AssetDescriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Location     string   `json:"location"`
	ProcedureIDs []string `json:"procedure_ids,omitempty"`
}

// TransitionRecord is one audit entry of a procedure state change.
type TransitionRecord struct {
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
	Intent    Intent       `json:"intent"`
	StepIndex int          `json:"step_index"`
	Timestamp time.Time    `json:"timestamp"`
}

// Session holds all per-interaction-stream state: conversation history,
// procedure cursor, and asset context. A session owns its cursor and history
// exclusively; the pipeline serializes all access per session.
type Session struct {
	ID           string             `json:"id"`
	State        SessionState       `json:"state"`
	ProcedureID  string             `json:"procedure_id,omitempty"`
	StepIndex    int                `json:"step_index"`
	Asset        *AssetContext      `json:"asset,omitempty"`
	History      []Command          `json:"history,omitempty"`
	Transitions  []TransitionRecord `json:"transitions,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActivity time.Time          `json:"last_activity"`
}

// NewSession creates an idle session.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		State:        StateIdle,
		StepIndex:    0,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// InProcedure reports whether the session currently holds a procedure cursor.
func (s *Session) InProcedure() bool {
	return s.State == StateInProcedure || s.State == StateAwaitingConfirmation
}

// RecordTransition appends an audit entry for a procedure state change.
func (s *Session) RecordTransition(from, to SessionState, intent Intent) {
	s.Transitions = append(s.Transitions, TransitionRecord{
		From:      from,
		To:        to,
		Intent:    intent,
		StepIndex: s.StepIndex,
		Timestamp: time.Now(),
	})
}

// SessionArchive is the durable record written when a session closes or expires.
type SessionArchive struct {
	SessionID   string             `json:"session_id"`
	ProcedureID string             `json:"procedure_id,omitempty"`
	Completed   bool               `json:"completed"`
	Commands    int                `json:"commands"`
	Transitions []TransitionRecord `json:"transitions,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	ClosedAt    time.Time          `json:"closed_at"`
	Reason      string             `json:"reason"`
}
