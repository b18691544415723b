package models

import "time"

// ProviderErrKind classifies why a provider call did not produce a usable answer.
type ProviderErrKind string

const (
	ProviderErrNone    ProviderErrKind = ""
	ProviderErrTimeout ProviderErrKind = "timeout"
	ProviderErrFailed  ProviderErrKind = "failed"
	ProviderErrLowConf ProviderErrKind = "low_confidence"
)

// ProviderResult is the transient outcome of one backend call. It is owned by
// the orchestrator invocation that created it and discarded after composition.
type ProviderResult struct {
	ProviderID string          `json:"provider_id"`
	Latency    time.Duration   `json:"latency"`
	Success    bool            `json:"success"`
	Text       string          `json:"text,omitempty"`
	Confidence float64         `json:"confidence"`
	ErrKind    ProviderErrKind `json:"err_kind,omitempty"`
}
