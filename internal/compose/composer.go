// Package compose turns extraction, navigation, and generation outcomes into
// the single spoken reply a session hands back to the speech channel.
package compose

import (
	"fmt"
	"strings"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
)

// DefaultClarifyThreshold is the confidence below which a command is echoed
// back for confirmation instead of acted on.
const DefaultClarifyThreshold = 0.6

// Composer builds replies. It owns the clarification gate: a command whose
// confidence falls below the threshold never reaches an action or a
// provider; the worker hears the engine's best guess and can rephrase.
type Composer struct {
	clarifyThreshold float64
}

// NewComposer creates a composer with the given clarification threshold.
func NewComposer(clarifyThreshold float64) *Composer {
	if clarifyThreshold <= 0 {
		clarifyThreshold = DefaultClarifyThreshold
	}
	return &Composer{clarifyThreshold: clarifyThreshold}
}

// NeedsClarification reports whether the command's confidence falls below
// the clarification threshold. At or above the threshold a reply never
// clarifies; below it a reply always does.
func (c *Composer) NeedsClarification(cmd models.Command) bool {
	return cmd.Confidence < c.clarifyThreshold
}

// Clarify builds the confirmation prompt for a low-confidence command. The
// prompt names the engine's best-guess interpretation so the worker can
// correct it instead of repeating themselves blindly.
func (c *Composer) Clarify(cmd models.Command) models.Reply {
	return models.Reply{
		SessionID: cmd.SessionID,
		Text:      fmt.Sprintf("I think you want to %s, but I'm not sure I heard you right. Could you confirm or rephrase?", describeIntent(cmd)),
		Outcome:   models.OutcomeClarification,
	}
}

// FromNavigation wraps a procedure navigation outcome.
func (c *Composer) FromNavigation(cmd models.Command, nav procedure.NavReply) models.Reply {
	reply := models.Reply{
		SessionID: cmd.SessionID,
		Text:      nav.Text,
		Outcome:   models.OutcomeProcedure,
	}
	if nav.Step != nil && len(nav.Step.SafetyFlags) > 0 {
		reply.Hints = &models.SpeechHints{
			Emphasis: nav.Step.SafetyFlags,
			SlowDown: true,
		}
	}
	if nav.Completed {
		// The spoken "complete" carries no procedure entity; the id
		// comes from the navigation outcome itself.
		reply.Action = &models.Action{
			Type:   models.ActionCompleteStep,
			Fields: map[string]string{"procedure_id": nav.ProcedureID},
		}
	}
	return reply
}

// FromAction builds the confirmation reply for an action intent. The action
// payload rides along for the business layer; the engine itself persists
// nothing.
func (c *Composer) FromAction(cmd models.Command) models.Reply {
	action := buildAction(cmd)
	return models.Reply{
		SessionID: cmd.SessionID,
		Text:      confirmAction(cmd, action),
		Action:    action,
		Outcome:   models.OutcomeAnswer,
	}
}

// FromGeneration wraps a provider result into a spoken answer.
func (c *Composer) FromGeneration(cmd models.Command, result models.ProviderResult) models.Reply {
	if !result.Success {
		return models.Reply{
			SessionID: cmd.SessionID,
			Text:      result.Text,
			Outcome:   models.OutcomeUnavailable,
		}
	}
	return models.Reply{
		SessionID: cmd.SessionID,
		Text:      result.Text,
		Outcome:   models.OutcomeAnswer,
	}
}

// FromProcedureError wraps a rejected procedure transition: the corrective
// prompt is spoken, nothing else changes.
func (c *Composer) FromProcedureError(cmd models.Command, prompt string) models.Reply {
	return models.Reply{
		SessionID: cmd.SessionID,
		Text:      prompt,
		Outcome:   models.OutcomeError,
	}
}

// FromExtractionError is spoken when the transcript could not be processed
// at all.
func (c *Composer) FromExtractionError(sessionID string) models.Reply {
	return models.Reply{
		SessionID: sessionID,
		Text:      "I didn't catch that. Could you say it again?",
		Outcome:   models.OutcomeError,
	}
}

// FromInternalError is spoken when the engine itself failed. Repeating the
// command won't help, so the prompt asks the worker to wait instead.
func (c *Composer) FromInternalError(sessionID string) models.Reply {
	return models.Reply{
		SessionID: sessionID,
		Text:      "Something went wrong on my end. Give me a moment, then try again.",
		Outcome:   models.OutcomeError,
	}
}

// buildAction maps an action intent to its structured payload. Returns nil
// for intents that carry no action.
func buildAction(cmd models.Command) *models.Action {
	switch cmd.Intent {
	case models.IntentCreateTask:
		fields := map[string]string{
			"description": cmd.Transcript,
		}
		if asset := cmd.Entity(models.EntityAssetID); asset != "" {
			fields["asset_id"] = asset
		}
		if priority := cmd.Entity(models.EntityPriority); priority != "" {
			fields["priority"] = priority
		}
		return &models.Action{Type: models.ActionCreateWorkOrder, Fields: fields}
	case models.IntentQueryStatus:
		fields := map[string]string{}
		if asset := cmd.Entity(models.EntityAssetID); asset != "" {
			fields["asset_id"] = asset
		}
		if query := cmd.Entity(models.EntityQuery); query != "" {
			fields["query"] = query
		}
		return &models.Action{Type: models.ActionQueryStatus, Fields: fields}
	default:
		return nil
	}
}

// confirmAction phrases the spoken confirmation for an action payload.
func confirmAction(cmd models.Command, action *models.Action) string {
	if action == nil {
		return "Okay."
	}
	switch action.Type {
	case models.ActionCreateWorkOrder:
		var b strings.Builder
		b.WriteString("Creating a work order")
		if asset := action.Fields["asset_id"]; asset != "" {
			fmt.Fprintf(&b, " for %s", asset)
		}
		if priority := action.Fields["priority"]; priority != "" {
			fmt.Fprintf(&b, " with %s priority", priority)
		}
		b.WriteString(".")
		return b.String()
	case models.ActionQueryStatus:
		if asset := action.Fields["asset_id"]; asset != "" {
			return fmt.Sprintf("Checking the status of %s.", asset)
		}
		return "Checking the status for you."
	default:
		return "Okay."
	}
}

// describeIntent phrases the engine's interpretation of a command for the
// clarification prompt.
func describeIntent(cmd models.Command) string {
	asset := cmd.Entity(models.EntityAssetID)
	switch cmd.Intent {
	case models.IntentCreateTask:
		if asset != "" {
			return fmt.Sprintf("create a work order for %s", asset)
		}
		return "create a work order"
	case models.IntentQueryStatus:
		if asset != "" {
			return fmt.Sprintf("check the status of %s", asset)
		}
		return "check an asset's status"
	case models.IntentStartProcedure:
		if name := cmd.Entity(models.EntityProcedure); name != "" {
			return fmt.Sprintf("start the %s procedure", name)
		}
		return "start a procedure"
	case models.IntentNavigateNext:
		return "move to the next step"
	case models.IntentNavigateRepeat:
		return "hear the current step again"
	case models.IntentNavigateComplete:
		return "complete the procedure"
	case models.IntentNavigateCancel:
		return "cancel the procedure"
	case models.IntentCloseSession:
		return "end the session"
	default:
		return fmt.Sprintf("ask: %q", cmd.Transcript)
	}
}
