// Package models also carries the pipeline error taxonomy. All of these are
// handled inside the pipeline and converted into user-facing reply text;
// none may escape to the session as an unhandled fault.
package models

import "errors"

// Sentinel errors for the voice pipeline.
// Use errors.Is() to classify failures in calling code.
var (
	// ErrExtraction indicates an empty or non-text transcript.
	ErrExtraction = errors.New("transcript extraction failed")

	// ErrLowConfidence indicates recognition below the clarification
	// threshold. It triggers a clarification question, not a failure.
	ErrLowConfidence = errors.New("recognition confidence below threshold")

	// ErrProviderTimeout indicates a single backend exceeded its budget.
	// Recoverable: the orchestrator falls through to the next provider.
	ErrProviderTimeout = errors.New("provider timed out")

	// ErrProviderFailed indicates a backend returned an error response.
	// Recoverable like ErrProviderTimeout.
	ErrProviderFailed = errors.New("provider call failed")

	// ErrServiceUnavailable indicates every configured provider was
	// exhausted. Terminal for the command, not for the session.
	ErrServiceUnavailable = errors.New("all providers exhausted")

	// ErrProcedureState indicates an invalid navigation transition. The
	// session manager answers with a corrective prompt and keeps its state.
	ErrProcedureState = errors.New("invalid procedure transition")

	// ErrMemoryStore indicates a memory read/write failure. The pipeline
	// degrades to answering without memory context rather than aborting.
	ErrMemoryStore = errors.New("memory store failure")
)
