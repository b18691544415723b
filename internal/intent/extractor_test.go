package intent

import (
	"errors"
	"testing"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

func TestExtractIntents(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		wantIntent models.Intent
	}{
		{"create work order", "create work order for PUMP-001 high priority", models.IntentCreateTask},
		{"create ticket phrasing", "please log a ticket for the compressor", models.IntentCreateTask},
		{"raise work order", "raise a work order on HVAC-12", models.IntentCreateTask},
		{"status query", "what's the status of PUMP-001", models.IntentQueryStatus},
		{"status of phrasing", "give me the status of the main compressor", models.IntentQueryStatus},
		{"next", "next", models.IntentNavigateNext},
		{"next step", "next step please", models.IntentNavigateNext},
		{"continue", "continue", models.IntentNavigateNext},
		{"repeat", "repeat that", models.IntentNavigateRepeat},
		{"say again", "say that again", models.IntentNavigateRepeat},
		{"complete", "done", models.IntentNavigateComplete},
		{"confirm completion", "confirm completion", models.IntentNavigateComplete},
		{"cancel", "cancel the procedure", models.IntentNavigateCancel},
		{"abort", "abort", models.IntentNavigateCancel},
		{"start procedure", "start the pump inspection procedure", models.IntentStartProcedure},
		{"guide me", "guide me through the monthly maintenance checklist", models.IntentStartProcedure},
		{"close session", "goodbye", models.IntentCloseSession},
		{"free form", "tell me something about bearing wear", models.IntentFreeForm},
		{"free form question", "why is the motor vibrating", models.IntentFreeForm},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := e.Extract("sess-1", tt.transcript, -1)
			if err != nil {
				t.Fatalf("Extract(%q) error = %v", tt.transcript, err)
			}
			if cmd.Intent != tt.wantIntent {
				t.Errorf("Extract(%q) intent = %q, want %q", tt.transcript, cmd.Intent, tt.wantIntent)
			}
		})
	}
}

func TestExtractEntities(t *testing.T) {
	e := New()

	// Scenario: spoken work order with asset and priority.
	cmd, err := e.Extract("sess-1", "create work order for PUMP-001 high priority", -1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := cmd.Entity(models.EntityAssetID); got != "PUMP-001" {
		t.Errorf("asset_id = %q, want PUMP-001", got)
	}
	if got := cmd.Entity(models.EntityPriority); got != "high" {
		t.Errorf("priority = %q, want high", got)
	}

	// Priority synonyms canonicalize.
	cmd, err = e.Extract("sess-1", "open an urgent work order for FAN_7", -1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := cmd.Entity(models.EntityPriority); got != "high" {
		t.Errorf("priority = %q, want high (urgent canonicalizes)", got)
	}
	if got := cmd.Entity(models.EntityAssetID); got != "FAN-7" {
		t.Errorf("asset_id = %q, want FAN-7", got)
	}

	// Procedure name captured on start.
	cmd, err = e.Extract("sess-1", "start the pump inspection procedure", -1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := cmd.Entity(models.EntityProcedure); got != "pump inspection" {
		t.Errorf("procedure = %q, want %q", got, "pump inspection")
	}
}

func TestExtractErrors(t *testing.T) {
	e := New()

	for _, transcript := range []string{"", "   ", "?!...", "---"} {
		_, err := e.Extract("sess-1", transcript, -1)
		if !errors.Is(err, models.ErrExtraction) {
			t.Errorf("Extract(%q) error = %v, want ErrExtraction", transcript, err)
		}
	}
}

func TestExtractFreeFormLowConfidence(t *testing.T) {
	e := New()
	cmd, err := e.Extract("sess-1", "hmm the thing near the other thing", -1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if cmd.Intent != models.IntentFreeForm {
		t.Fatalf("intent = %q, want free_form", cmd.Intent)
	}
	if cmd.Confidence >= 0.5 {
		t.Errorf("free_form confidence = %v, want < 0.5", cmd.Confidence)
	}
	if got := cmd.Entity(models.EntityQuery); got == "" {
		t.Error("free_form command should carry the query entity")
	}
}

func TestExtractBlendsUpstreamConfidence(t *testing.T) {
	e := New()

	high, err := e.Extract("sess-1", "next step", 1.0)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	low, err := e.Extract("sess-1", "next step", 0.1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if low.Confidence >= high.Confidence {
		t.Errorf("low upstream confidence %v should reduce command confidence below %v", low.Confidence, high.Confidence)
	}
}

func TestExtractIsPure(t *testing.T) {
	e := New()
	entities := map[string]string{}
	cmd, err := e.Extract("sess-1", "next", -1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	// Mutating the returned map must not affect a second extraction.
	if cmd.Entities != nil {
		cmd.Entities["poison"] = "x"
	}
	entities["poison"] = "y"
	again, err := e.Extract("sess-1", "next", -1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if again.Entity("poison") != "" {
		t.Error("extractor leaked state between calls")
	}
}
