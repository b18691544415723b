package models

import "time"

// Step is a single instruction within a procedure.
type Step struct {
	Index       int           `json:"index"`
	Instruction string        `json:"instruction"`
	SafetyFlags []string      `json:"safety_flags,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Procedure is a read-only ordered sequence of guided steps. Sessions hold
// only a cursor into it; the template itself is never mutated.
type Procedure struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	AssetID  string        `json:"asset_id,omitempty"`
	Steps    []Step        `json:"steps"`
	Duration time.Duration `json:"duration,omitempty"`
	Created  time.Time     `json:"created,omitempty"`
}

// Step returns the step at index, or false when the index is out of range.
func (p *Procedure) Step(index int) (Step, bool) {
	if index < 0 || index >= len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[index], true
}

// LastIndex is the index of the final step.
func (p *Procedure) LastIndex() int {
	return len(p.Steps) - 1
}
