package models

// Outcome classifies how a reply was produced.
type Outcome string

const (
	OutcomeAnswer        Outcome = "answer"
	OutcomeProcedure     Outcome = "procedure"
	OutcomeClarification Outcome = "clarification"
	OutcomeUnavailable   Outcome = "unavailable"
	OutcomeError         Outcome = "error"
)

// SpeechHints carries optional emphasis/pacing hints for the downstream
// speech synthesizer.
type SpeechHints struct {
	Emphasis []string `json:"emphasis,omitempty"`
	SlowDown bool     `json:"slow_down,omitempty"`
}

// Action is a structured payload handed to the external business layer for
// execution. The engine never performs the persistence itself.
type Action struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Well-known action types.
const (
	ActionCreateWorkOrder = "create_work_order"
	ActionQueryStatus     = "query_status"
	ActionCompleteStep    = "complete_procedure"
)

// Reply is the single payload handed back to the speech channel: spoken text
// plus an optional structured action.
type Reply struct {
	SessionID string       `json:"session_id"`
	Text      string       `json:"text"`
	Hints     *SpeechHints `json:"hints,omitempty"`
	Action    *Action      `json:"action,omitempty"`
	Outcome   Outcome      `json:"outcome"`
}
