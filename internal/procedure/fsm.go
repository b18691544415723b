// Package procedure implements the per-session finite state machine that
// drives hands-free step-by-step procedure guidance.
package procedure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// transitions enumerates which navigation intents are legal in which state.
// Everything absent from this table is rejected with ErrProcedureState and
// answered with a corrective prompt instead of a fault.
var transitions = map[models.SessionState]map[models.Intent]bool{
	models.StateIdle: {
		models.IntentStartProcedure: true,
		models.IntentNavigateCancel: true,
		models.IntentCloseSession:   true,
	},
	models.StateInProcedure: {
		models.IntentNavigateNext:   true,
		models.IntentNavigateRepeat: true,
		models.IntentNavigateCancel: true,
		models.IntentCloseSession:   true,
	},
	models.StateAwaitingConfirmation: {
		models.IntentNavigateRepeat:   true,
		models.IntentNavigateComplete: true,
		models.IntentNavigateCancel:   true,
		models.IntentCloseSession:     true,
	},
	models.StateClosed: {},
}

// correctivePrompts tell the speaker what they can do from the current state.
var correctivePrompts = map[models.SessionState]string{
	models.StateIdle:                 "There's no procedure running. Say, for example, start the pump inspection procedure.",
	models.StateInProcedure:          "We're mid-procedure. Say next, repeat, or cancel.",
	models.StateAwaitingConfirmation: "All steps are done. Say complete to sign off, repeat to hear the last step, or cancel.",
	models.StateClosed:               "This session is closed. Start a new session to continue.",
}

// Library resolves procedure templates by id or spoken name.
type Library interface {
	// Get returns the procedure with the exact id.
	Get(ctx context.Context, id string) (*models.Procedure, error)
	// Find resolves a spoken reference ("pump inspection") to a procedure.
	Find(ctx context.Context, ref string) (*models.Procedure, error)
	// List returns all known procedures.
	List(ctx context.Context) ([]*models.Procedure, error)
}

// NavReply is the session manager's contribution to the composed reply.
type NavReply struct {
	// Text is the speakable outcome: a step announcement, a completion
	// summary, or a corrective prompt.
	Text string
	// ProcedureID names the procedure the reply concerns, when one is
	// active.
	ProcedureID string
	// Step is the step now current, when one is.
	Step *models.Step
	// Completed is set when the procedure was signed off.
	Completed bool
	// SessionClosed is set when the session itself was closed.
	SessionClosed bool
}

// Manager applies navigation commands to session state. It holds no
// per-session state of its own; the caller serializes access per session.
type Manager struct {
	library Library
	logger  *slog.Logger
}

// NewManager creates a procedure session manager.
func NewManager(library Library, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{library: library, logger: logger}
}

// Apply executes one navigation command against the session. Invalid
// transitions return a NavReply carrying the corrective prompt together
// with an error wrapping models.ErrProcedureState; the session is left
// exactly as it was.
func (m *Manager) Apply(ctx context.Context, sess *models.Session, cmd models.Command) (NavReply, error) {
	if !transitions[sess.State][cmd.Intent] {
		m.logger.Info("rejected navigation",
			"session_id", sess.ID, "state", sess.State, "intent", cmd.Intent)
		return NavReply{Text: correctivePrompts[sess.State]},
			fmt.Errorf("%s in state %s: %w", cmd.Intent, sess.State, models.ErrProcedureState)
	}

	switch cmd.Intent {
	case models.IntentStartProcedure:
		return m.start(ctx, sess, cmd)
	case models.IntentNavigateNext:
		return m.next(ctx, sess, cmd)
	case models.IntentNavigateRepeat:
		return m.repeat(ctx, sess)
	case models.IntentNavigateComplete:
		return m.complete(sess, cmd)
	case models.IntentNavigateCancel:
		return m.cancel(sess, cmd)
	case models.IntentCloseSession:
		return m.close(sess, cmd)
	}

	return NavReply{Text: correctivePrompts[sess.State]},
		fmt.Errorf("unhandled intent %s: %w", cmd.Intent, models.ErrProcedureState)
}

func (m *Manager) start(ctx context.Context, sess *models.Session, cmd models.Command) (NavReply, error) {
	ref := cmd.Entity(models.EntityProcedure)
	if ref == "" && sess.Asset != nil && sess.Asset.Descriptor != nil && len(sess.Asset.Descriptor.ProcedureIDs) == 1 {
		// A scanned asset with exactly one known procedure needs no name.
		ref = sess.Asset.Descriptor.ProcedureIDs[0]
	}
	if ref == "" {
		return NavReply{Text: "Which procedure should I start?"},
			fmt.Errorf("start without procedure reference: %w", models.ErrProcedureState)
	}

	proc, err := m.library.Find(ctx, ref)
	if err != nil {
		return NavReply{Text: fmt.Sprintf("I couldn't find a procedure called %s.", ref)},
			fmt.Errorf("resolve procedure %q: %w", ref, err)
	}
	if len(proc.Steps) == 0 {
		return NavReply{Text: fmt.Sprintf("The procedure %s has no steps.", proc.Title)},
			fmt.Errorf("procedure %s is empty: %w", proc.ID, models.ErrProcedureState)
	}

	from := sess.State
	sess.State = models.StateInProcedure
	sess.ProcedureID = proc.ID
	sess.StepIndex = 0
	sess.RecordTransition(from, sess.State, cmd.Intent)
	m.logger.Info("procedure started", "session_id", sess.ID, "procedure", proc.ID, "steps", len(proc.Steps))

	step := proc.Steps[0]
	return NavReply{
		Text:        fmt.Sprintf("Starting %s, %d steps. %s", proc.Title, len(proc.Steps), formatStep(proc, step)),
		ProcedureID: proc.ID,
		Step:        &step,
	}, nil
}

func (m *Manager) next(ctx context.Context, sess *models.Session, cmd models.Command) (NavReply, error) {
	proc, err := m.currentProcedure(ctx, sess)
	if err != nil {
		return NavReply{Text: correctivePrompts[models.StateIdle]}, err
	}

	if sess.StepIndex >= proc.LastIndex() {
		// Past the final step: ask for completion sign-off instead of
		// running the cursor out of range.
		from := sess.State
		sess.State = models.StateAwaitingConfirmation
		sess.RecordTransition(from, sess.State, cmd.Intent)
		return NavReply{
			Text:        fmt.Sprintf("That was the last step of %s. Say complete to sign off.", proc.Title),
			ProcedureID: proc.ID,
		}, nil
	}

	from := sess.State
	sess.StepIndex++
	sess.RecordTransition(from, sess.State, cmd.Intent)

	step := proc.Steps[sess.StepIndex]
	return NavReply{Text: formatStep(proc, step), ProcedureID: proc.ID, Step: &step}, nil
}

// repeat re-emits the current step without touching any state, so applying
// it any number of times is indistinguishable from applying it once.
func (m *Manager) repeat(ctx context.Context, sess *models.Session) (NavReply, error) {
	proc, err := m.currentProcedure(ctx, sess)
	if err != nil {
		return NavReply{Text: correctivePrompts[models.StateIdle]}, err
	}

	if sess.State == models.StateAwaitingConfirmation {
		return NavReply{
			Text:        fmt.Sprintf("That was the last step of %s. Say complete to sign off.", proc.Title),
			ProcedureID: proc.ID,
		}, nil
	}

	step := proc.Steps[sess.StepIndex]
	return NavReply{Text: formatStep(proc, step), ProcedureID: proc.ID, Step: &step}, nil
}

func (m *Manager) complete(sess *models.Session, cmd models.Command) (NavReply, error) {
	from := sess.State
	procID := sess.ProcedureID
	sess.State = models.StateClosed
	sess.RecordTransition(from, sess.State, cmd.Intent)
	m.logger.Info("procedure completed", "session_id", sess.ID, "procedure", procID)

	return NavReply{
		Text:          fmt.Sprintf("Procedure %s signed off and recorded. Nice work.", procID),
		ProcedureID:   procID,
		Completed:     true,
		SessionClosed: true,
	}, nil
}

func (m *Manager) cancel(sess *models.Session, cmd models.Command) (NavReply, error) {
	if sess.State == models.StateIdle {
		// Cancelling with nothing running is a harmless no-op.
		return NavReply{Text: "There's nothing running to cancel. The session stays open."}, nil
	}

	from := sess.State
	sess.State = models.StateIdle
	sess.ProcedureID = ""
	sess.StepIndex = 0
	sess.RecordTransition(from, sess.State, cmd.Intent)

	return NavReply{Text: "Procedure cancelled. The session stays open."}, nil
}

func (m *Manager) close(sess *models.Session, cmd models.Command) (NavReply, error) {
	from := sess.State
	sess.State = models.StateClosed
	sess.ProcedureID = ""
	sess.RecordTransition(from, sess.State, cmd.Intent)

	return NavReply{Text: "Session closed. Goodbye.", SessionClosed: true}, nil
}

// currentProcedure loads the session's active procedure and re-checks the
// cursor invariant before any navigation uses it.
func (m *Manager) currentProcedure(ctx context.Context, sess *models.Session) (*models.Procedure, error) {
	if sess.ProcedureID == "" {
		return nil, fmt.Errorf("no active procedure: %w", models.ErrProcedureState)
	}
	proc, err := m.library.Get(ctx, sess.ProcedureID)
	if err != nil {
		return nil, fmt.Errorf("load procedure %s: %w", sess.ProcedureID, err)
	}
	if sess.StepIndex < 0 || sess.StepIndex >= len(proc.Steps) {
		return nil, fmt.Errorf("cursor %d out of range for %s: %w", sess.StepIndex, proc.ID, models.ErrProcedureState)
	}
	return proc, nil
}

// formatStep renders a step announcement with its safety flags up front.
func formatStep(proc *models.Procedure, step models.Step) string {
	var b strings.Builder
	if len(step.SafetyFlags) > 0 {
		b.WriteString("Caution: ")
		b.WriteString(strings.Join(step.SafetyFlags, ", "))
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "Step %d of %d: %s", step.Index+1, len(proc.Steps), step.Instruction)
	return b.String()
}
