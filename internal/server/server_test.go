package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldvoice/fieldvoice/internal/compose"
	"github.com/fieldvoice/fieldvoice/internal/intent"
	"github.com/fieldvoice/fieldvoice/internal/memory"
	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/orchestrator"
	"github.com/fieldvoice/fieldvoice/internal/pipeline"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
	"github.com/fieldvoice/fieldvoice/internal/session"
	"github.com/fieldvoice/fieldvoice/internal/session/drivers"
)

type flatEmbedder struct{}

func (flatEmbedder) Dimension() int { return 2 }

func (flatEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	proc := &models.Procedure{
		ID:    "pump-inspection",
		Title: "Pump Inspection",
		Steps: []models.Step{{Index: 0, Instruction: "Isolate the pump."}},
	}

	p := pipeline.New(
		intent.New(),
		session.NewManager(drivers.NewInMemoryStore(), time.Minute),
		procedure.NewManager(procedure.NewStaticLibrary(proc), nil),
		memory.NewStore(flatEmbedder{}, memory.DefaultConfig()),
		orchestrator.New(nil, orchestrator.DefaultConfig()),
		compose.NewComposer(0.6),
	)
	return New(":0", p, nil)
}

func dialVoice(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/voice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestVoiceRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.http.Handler)
	defer ts.Close()

	conn := dialVoice(t, ts)

	err := conn.WriteJSON(TranscriptFrame{
		SessionID:  "sess-1",
		Transcript: "start the pump inspection procedure",
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("write frame: %v", err)
	}

	var reply models.Reply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.SessionID != "sess-1" {
		t.Errorf("reply session = %q, want sess-1", reply.SessionID)
	}
	if reply.Outcome != models.OutcomeProcedure {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeProcedure)
	}
	if !strings.Contains(reply.Text, "Isolate the pump") {
		t.Errorf("reply should speak the first step, got %q", reply.Text)
	}
}

func TestVoiceRejectsMissingSession(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.http.Handler)
	defer ts.Close()

	conn := dialVoice(t, ts)

	if err := conn.WriteJSON(TranscriptFrame{Transcript: "next step"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	var reply models.Reply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Outcome != models.OutcomeError {
		t.Errorf("outcome = %q, want %q", reply.Outcome, models.OutcomeError)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.http.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.http.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("stats request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stats status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
}
