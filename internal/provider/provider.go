// Package provider defines the uniform adapter interface every AI backend
// plugs in through, plus the backend-specific implementations.
//
// The orchestrator is agnostic to which backend sits behind an Adapter;
// backends are selected by configuration, never by runtime type inspection.
package provider

import (
	"context"
	"strings"
	"sync"
)

// Prompt is the uniform request shape sent to every backend.
type Prompt struct {
	// System frames the assistant's role for the maintenance domain.
	System string
	// User is the composed question or instruction.
	User string
	// Context carries retrieval-memory snippets, most relevant first.
	Context []string
}

// Generation is the uniform response shape.
type Generation struct {
	Text       string
	Confidence float64
}

// Adapter is implemented once per backend.
type Adapter interface {
	// Name returns the provider identifier (e.g. "openai", "bedrock").
	Name() string

	// Generate produces an answer for the prompt. Implementations must
	// honor ctx cancellation: a cancelled racer may not leak side effects.
	Generate(ctx context.Context, prompt Prompt) (Generation, error)
}

// adapterRegistry holds constructed adapters by name.
var (
	adapterRegistry = make(map[string]Adapter)
	registryMu      sync.RWMutex
)

// Register adds an adapter to the registry, replacing any previous entry
// with the same name.
func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	adapterRegistry[a.Name()] = a
}

// Get retrieves an adapter by name, or nil if unknown.
func Get(name string) Adapter {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return adapterRegistry[name]
}

// List returns all registered adapter names.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapterRegistry))
	for name := range adapterRegistry {
		names = append(names, name)
	}
	return names
}

// FlattenContext renders memory snippets into a single prompt block.
func (p Prompt) FlattenContext() string {
	if len(p.Context) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant maintenance history:\n")
	for _, snippet := range p.Context {
		b.WriteString("- ")
		b.WriteString(snippet)
		b.WriteString("\n")
	}
	return b.String()
}

// estimateConfidence derives a confidence score from the answer text.
// Backends do not report calibrated confidence, so this applies a shared
// heuristic: empty or hedging answers rank low, substantive answers high.
func estimateConfidence(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	lower := strings.ToLower(trimmed)
	for _, hedge := range []string{
		"i don't know", "i do not know", "i'm not sure", "i am not sure",
		"cannot answer", "can't answer", "insufficient information",
	} {
		if strings.Contains(lower, hedge) {
			return 0.3
		}
	}

	if len(trimmed) < 12 {
		return 0.6
	}
	return 0.85
}
