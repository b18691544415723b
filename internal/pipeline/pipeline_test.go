package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/business"
	"github.com/fieldvoice/fieldvoice/internal/compose"
	"github.com/fieldvoice/fieldvoice/internal/intent"
	"github.com/fieldvoice/fieldvoice/internal/memory"
	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/orchestrator"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
	"github.com/fieldvoice/fieldvoice/internal/provider"
	"github.com/fieldvoice/fieldvoice/internal/session"
	"github.com/fieldvoice/fieldvoice/internal/session/drivers"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 4 }

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	v := h.Sum32()
	return []float32{
		float32(v & 0xff), float32(v >> 8 & 0xff),
		float32(v >> 16 & 0xff), float32(v >> 24 & 0xff),
	}, nil
}

// stallingEmbedder blocks until the caller's context expires, standing in
// for a hung embedding backend.
type stallingEmbedder struct{}

func (stallingEmbedder) Dimension() int { return 4 }

func (stallingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingSessionStore simulates a session backend outage.
type failingSessionStore struct{}

func (failingSessionStore) Put(context.Context, *models.Session) error {
	return errors.New("store down")
}
func (failingSessionStore) Get(context.Context, string) (*models.Session, error) {
	return nil, errors.New("store down")
}
func (failingSessionStore) Delete(context.Context, string) error            { return nil }
func (failingSessionStore) List(context.Context) ([]*models.Session, error) { return nil, nil }
func (failingSessionStore) Close() error                                    { return nil }

type fakeAdapter struct {
	name string
	text string
	conf float64
	err  error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Generate(ctx context.Context, _ provider.Prompt) (provider.Generation, error) {
	if err := ctx.Err(); err != nil {
		return provider.Generation{}, err
	}
	if a.err != nil {
		return provider.Generation{}, a.err
	}
	return provider.Generation{Text: a.text, Confidence: a.conf}, nil
}

type capturingDispatcher struct {
	mu      sync.Mutex
	actions []models.Action
}

func (d *capturingDispatcher) Dispatch(_ context.Context, _ string, action models.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
	return nil
}

func (d *capturingDispatcher) all() []models.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Action(nil), d.actions...)
}

func testProcedure() *models.Procedure {
	return &models.Procedure{
		ID:    "pump-inspection",
		Title: "Pump Inspection",
		Steps: []models.Step{
			{Index: 0, Instruction: "Isolate the pump and verify lockout.", SafetyFlags: []string{"lockout required"}},
			{Index: 1, Instruction: "Check the seal for leaks."},
			{Index: 2, Instruction: "Record the bearing temperature."},
		},
	}
}

func newTestPipeline(t *testing.T, adapters []provider.Adapter, opts ...Option) *Pipeline {
	t.Helper()

	mem := memory.NewStore(fakeEmbedder{}, memory.DefaultConfig())
	sessions := session.NewManager(drivers.NewInMemoryStore(), time.Minute)
	procedures := procedure.NewManager(procedure.NewStaticLibrary(testProcedure()), nil)
	orch := orchestrator.New(adapters, orchestrator.DefaultConfig())
	composer := compose.NewComposer(0.6)

	return New(intent.New(), sessions, procedures, mem, orch, composer, opts...)
}

func TestHandleCreateWorkOrder(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	p := newTestPipeline(t, nil, WithDispatcher(dispatcher))

	reply, err := p.Handle(context.Background(),
		"sess-1", "create a high priority work order for PUMP-004", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if reply.Outcome != models.OutcomeAnswer {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeAnswer)
	}
	if reply.Action == nil || reply.Action.Type != models.ActionCreateWorkOrder {
		t.Fatalf("expected a create_work_order action, got %+v", reply.Action)
	}
	if reply.Action.Fields["asset_id"] != "PUMP-004" {
		t.Errorf("asset_id = %q, want PUMP-004", reply.Action.Fields["asset_id"])
	}
	if reply.Action.Fields["priority"] != "high" {
		t.Errorf("priority = %q, want high", reply.Action.Fields["priority"])
	}

	actions := dispatcher.all()
	if len(actions) != 1 {
		t.Fatalf("dispatched %d actions, want 1", len(actions))
	}
}

func TestHandleProcedureWalk(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	reply, err := p.Handle(ctx, "sess-1", "start the pump inspection procedure", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Outcome != models.OutcomeProcedure {
		t.Fatalf("outcome = %q, want %q", reply.Outcome, models.OutcomeProcedure)
	}
	if !strings.Contains(reply.Text, "Step 1 of 3") {
		t.Errorf("start should announce the first step, got %q", reply.Text)
	}
	if reply.Hints == nil || !reply.Hints.SlowDown {
		t.Error("safety-flagged first step should slow speech down")
	}

	reply, err = p.Handle(ctx, "sess-1", "next step", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(reply.Text, "Step 2 of 3") {
		t.Errorf("next should announce the second step, got %q", reply.Text)
	}
}

func TestHandleRejectedNavigationSpeaksCorrection(t *testing.T) {
	p := newTestPipeline(t, nil)

	// No procedure is active, so completion must be rejected with guidance
	// and the session must stay usable.
	reply, err := p.Handle(context.Background(), "sess-1", "procedure complete", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Outcome != models.OutcomeError {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeError)
	}
	if reply.Text == "" {
		t.Error("rejected navigation must still speak a corrective prompt")
	}

	reply, err = p.Handle(context.Background(), "sess-1", "start the pump inspection procedure", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Outcome != models.OutcomeProcedure {
		t.Errorf("session should remain usable after a rejection, got %q", reply.Outcome)
	}
}

func TestHandleGenerativeAnswer(t *testing.T) {
	p := newTestPipeline(t, []provider.Adapter{
		&fakeAdapter{name: "a", text: "Torque it to 25 newton meters.", conf: 0.8},
	})

	reply, err := p.Handle(context.Background(),
		"sess-1", "what torque does the coupling bolt need", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Outcome != models.OutcomeAnswer {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeAnswer)
	}
	if reply.Text != "Torque it to 25 newton meters." {
		t.Errorf("unexpected answer text %q", reply.Text)
	}
}

func TestHandleAllProvidersDown(t *testing.T) {
	p := newTestPipeline(t, []provider.Adapter{
		&fakeAdapter{name: "a", err: context.DeadlineExceeded},
		&fakeAdapter{name: "b", err: context.DeadlineExceeded},
	})

	reply, err := p.Handle(context.Background(),
		"sess-1", "what torque does the coupling bolt need", 0.9)
	if err != nil {
		t.Fatalf("exhaustion must not surface as a pipeline error, got %v", err)
	}
	if reply.Outcome != models.OutcomeUnavailable {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeUnavailable)
	}
	if reply.Text != orchestrator.UnavailableText {
		t.Errorf("expected the canned unavailable text, got %q", reply.Text)
	}
}

func TestHandleLowConfidenceClarifies(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	p := newTestPipeline(t, nil, WithDispatcher(dispatcher))

	// Grammar hit, but the recognizer barely trusts the transcript.
	reply, err := p.Handle(context.Background(),
		"sess-1", "create a work order for PUMP-004", 0.2)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Outcome != models.OutcomeClarification {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeClarification)
	}
	if len(dispatcher.all()) != 0 {
		t.Error("clarified command must not dispatch an action")
	}
}

func TestHandleUnintelligibleInput(t *testing.T) {
	p := newTestPipeline(t, nil)

	reply, err := p.Handle(context.Background(), "sess-1", "...", 0.9)
	if err != nil {
		t.Fatalf("unintelligible input must not surface as a pipeline error, got %v", err)
	}
	if reply.Outcome != models.OutcomeError {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeError)
	}
	if reply.Text == "" {
		t.Error("extraction failure must still produce spoken text")
	}
}

func TestHandleBoundsStalledEmbedding(t *testing.T) {
	mem := memory.NewStore(stallingEmbedder{}, memory.DefaultConfig())
	sessions := session.NewManager(drivers.NewInMemoryStore(), time.Minute)
	procedures := procedure.NewManager(procedure.NewStaticLibrary(testProcedure()), nil)
	orch := orchestrator.New([]provider.Adapter{
		&fakeAdapter{name: "a", text: "ok", conf: 0.9},
	}, orchestrator.DefaultConfig())
	p := New(intent.New(), sessions, procedures, mem, orch, compose.NewComposer(0.6),
		WithDeadline(100*time.Millisecond))

	start := time.Now()
	reply, err := p.Handle(context.Background(), "sess-1", "tell me about bearing noise", 0.95)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("command took %v, deadline not applied", elapsed)
	}
	if reply.Text == "" {
		t.Error("a bounded command must still speak")
	}

	// The session must not stay pinned behind the stalled command.
	reply, err = p.Handle(context.Background(), "sess-1", "start the pump inspection procedure", 0.9)
	if err != nil {
		t.Fatalf("Handle after stall failed: %v", err)
	}
	if reply.Outcome != models.OutcomeProcedure {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeProcedure)
	}
}

func TestHandleCompletionActionCarriesProcedureID(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	for _, transcript := range []string{
		"start the pump inspection procedure",
		"next step", "next step", "next step",
	} {
		if _, err := p.Handle(ctx, "sess-1", transcript, 0.9); err != nil {
			t.Fatalf("Handle(%q) failed: %v", transcript, err)
		}
	}

	reply, err := p.Handle(ctx, "sess-1", "procedure complete", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Action == nil || reply.Action.Type != models.ActionCompleteStep {
		t.Fatalf("expected a completion action, got %+v", reply.Action)
	}
	if got := reply.Action.Fields["procedure_id"]; got != "pump-inspection" {
		t.Errorf("procedure_id = %q, want pump-inspection", got)
	}
}

func TestHandleSessionFaultSpeaksInternalApology(t *testing.T) {
	mem := memory.NewStore(fakeEmbedder{}, memory.DefaultConfig())
	sessions := session.NewManager(failingSessionStore{}, time.Minute)
	procedures := procedure.NewManager(procedure.NewStaticLibrary(testProcedure()), nil)
	p := New(intent.New(), sessions, procedures, mem,
		orchestrator.New(nil, orchestrator.DefaultConfig()), compose.NewComposer(0.6))

	reply, err := p.Handle(context.Background(), "sess-1", "create a work order for PUMP-004", 0.9)
	if err == nil {
		t.Fatal("an internal fault must surface to the caller for logging")
	}
	if reply.Outcome != models.OutcomeError {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeError)
	}
	if reply.Text == "" || strings.Contains(reply.Text, "say it again") {
		t.Errorf("internal fault must not ask the worker to repeat, got %q", reply.Text)
	}
}

func TestBusinessDispatcherLogFallback(t *testing.T) {
	// Smoke test that the pipeline works without any external services.
	p := newTestPipeline(t, nil, WithDispatcher(business.NewLogDispatcher(nil)))

	reply, err := p.Handle(context.Background(),
		"sess-1", "open a work order for FAN_7", 0.9)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Action == nil {
		t.Fatal("expected an action payload")
	}
	if reply.Action.Fields["asset_id"] != "FAN-7" {
		t.Errorf("asset_id = %q, want FAN-7", reply.Action.Fields["asset_id"])
	}
}
