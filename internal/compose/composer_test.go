package compose

import (
	"strings"
	"testing"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
)

func command(intent models.Intent, confidence float64, entities map[string]string) models.Command {
	return models.NewCommand("sess-1", "test transcript", intent, entities, confidence)
}

func TestClarificationGate(t *testing.T) {
	c := NewComposer(0.6)

	tests := []struct {
		name       string
		confidence float64
		want       bool
	}{
		{"well below threshold", 0.2, true},
		{"just below threshold", 0.59, true},
		{"at threshold", 0.6, false},
		{"above threshold", 0.95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := command(models.IntentCreateTask, tt.confidence, nil)
			if got := c.NeedsClarification(cmd); got != tt.want {
				t.Errorf("NeedsClarification(conf=%v) = %v, want %v", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestClarifyEchoesInterpretation(t *testing.T) {
	c := NewComposer(0.6)
	cmd := command(models.IntentCreateTask, 0.4, map[string]string{
		models.EntityAssetID: "PUMP-004",
	})

	reply := c.Clarify(cmd)
	if reply.Outcome != models.OutcomeClarification {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeClarification)
	}
	if !strings.Contains(reply.Text, "work order") || !strings.Contains(reply.Text, "PUMP-004") {
		t.Errorf("clarification should name the guessed intent and asset, got %q", reply.Text)
	}
	if reply.Action != nil {
		t.Error("clarification must not carry an action")
	}
}

func TestFromActionCreateWorkOrder(t *testing.T) {
	c := NewComposer(0.6)
	cmd := command(models.IntentCreateTask, 0.9, map[string]string{
		models.EntityAssetID:  "PUMP-004",
		models.EntityPriority: "high",
	})

	reply := c.FromAction(cmd)
	if reply.Action == nil {
		t.Fatal("expected an action payload")
	}
	if reply.Action.Type != models.ActionCreateWorkOrder {
		t.Errorf("action type = %q, want %q", reply.Action.Type, models.ActionCreateWorkOrder)
	}
	if reply.Action.Fields["asset_id"] != "PUMP-004" {
		t.Errorf("asset_id = %q, want PUMP-004", reply.Action.Fields["asset_id"])
	}
	if reply.Action.Fields["priority"] != "high" {
		t.Errorf("priority = %q, want high", reply.Action.Fields["priority"])
	}
	if !strings.Contains(reply.Text, "PUMP-004") || !strings.Contains(reply.Text, "high") {
		t.Errorf("confirmation should speak the asset and priority, got %q", reply.Text)
	}
}

func TestFromActionQueryStatus(t *testing.T) {
	c := NewComposer(0.6)
	cmd := command(models.IntentQueryStatus, 0.9, map[string]string{
		models.EntityAssetID: "FAN-7",
	})

	reply := c.FromAction(cmd)
	if reply.Action == nil || reply.Action.Type != models.ActionQueryStatus {
		t.Fatalf("expected a query_status action, got %+v", reply.Action)
	}
	if reply.Action.Fields["asset_id"] != "FAN-7" {
		t.Errorf("asset_id = %q, want FAN-7", reply.Action.Fields["asset_id"])
	}
}

func TestFromNavigationSafetyHints(t *testing.T) {
	c := NewComposer(0.6)
	cmd := command(models.IntentNavigateNext, 0.9, nil)

	nav := procedure.NavReply{
		Text: "Caution: lockout required. Step 2 of 5: isolate the power supply.",
		Step: &models.Step{
			Index:       1,
			Instruction: "isolate the power supply",
			SafetyFlags: []string{"lockout required"},
		},
	}

	reply := c.FromNavigation(cmd, nav)
	if reply.Outcome != models.OutcomeProcedure {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeProcedure)
	}
	if reply.Hints == nil || !reply.Hints.SlowDown {
		t.Error("safety-flagged step should slow speech down")
	}
	if reply.Hints == nil || len(reply.Hints.Emphasis) != 1 {
		t.Fatalf("expected the safety flag to be emphasised, got %+v", reply.Hints)
	}
}

func TestFromNavigationCompletionAction(t *testing.T) {
	c := NewComposer(0.6)
	cmd := command(models.IntentNavigateComplete, 0.9, nil)

	reply := c.FromNavigation(cmd, procedure.NavReply{
		Text:        "Procedure complete. Nice work.",
		ProcedureID: "pump-inspection",
		Completed:   true,
	})
	if reply.Action == nil || reply.Action.Type != models.ActionCompleteStep {
		t.Fatalf("completed procedure should carry a completion action, got %+v", reply.Action)
	}
	if got := reply.Action.Fields["procedure_id"]; got != "pump-inspection" {
		t.Errorf("procedure_id = %q, want pump-inspection", got)
	}
}

func TestFromGeneration(t *testing.T) {
	c := NewComposer(0.6)
	cmd := command(models.IntentFreeForm, 0.8, nil)

	t.Run("success", func(t *testing.T) {
		reply := c.FromGeneration(cmd, models.ProviderResult{
			Success:    true,
			Text:       "Check the seal kit part number on the pump housing.",
			Confidence: 0.8,
		})
		if reply.Outcome != models.OutcomeAnswer {
			t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeAnswer)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		reply := c.FromGeneration(cmd, models.ProviderResult{
			Success: false,
			Text:    "I'm sorry, I can't reach the assistant service right now.",
		})
		if reply.Outcome != models.OutcomeUnavailable {
			t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeUnavailable)
		}
		if reply.Action != nil {
			t.Error("unavailable reply must not carry an action")
		}
	})
}

func TestFromExtractionError(t *testing.T) {
	c := NewComposer(0.6)
	reply := c.FromExtractionError("sess-1")
	if reply.Outcome != models.OutcomeError {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeError)
	}
	if reply.Text == "" {
		t.Error("extraction failure must still produce spoken text")
	}
}
