// Package server provides the WebSocket gateway the speech frontends
// connect to. Each frame in is one transcript; each frame out is one reply.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/pipeline"
)

const (
	// writeTimeout bounds one outbound frame.
	writeTimeout = 10 * time.Second
	// maxFrameBytes bounds one inbound transcript frame.
	maxFrameBytes = 64 * 1024
)

// TranscriptFrame is one spoken command arriving from a speech frontend.
type TranscriptFrame struct {
	SessionID  string  `json:"session_id"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Server is the WebSocket gateway over the pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a gateway listening on addr.
func New(addr string, p *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: p,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/voice", s.handleVoice)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)

	s.http = &http.Server{
		Addr:    addr,
		Handler: LoggingMiddleware(logger)(mux),
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("gateway stopped")
	return nil
}

// handleVoice upgrades the connection and relays transcript frames through
// the pipeline. One connection usually carries one session, but nothing
// depends on that: the session ID in each frame is authoritative.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	s.logger.Info("speech frontend connected", "remote", r.RemoteAddr)

	for {
		var frame TranscriptFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if isClosed(err) {
				s.logger.Info("speech frontend disconnected", "remote", r.RemoteAddr)
			} else {
				s.logger.Warn("read frame failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		reply := s.process(r.Context(), frame)

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Warn("write reply failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *Server) process(ctx context.Context, frame TranscriptFrame) models.Reply {
	if frame.SessionID == "" {
		return models.Reply{
			Text:    "This channel sent a command without a session. Please reconnect.",
			Outcome: models.OutcomeError,
		}
	}

	reply, err := s.pipeline.Handle(ctx, frame.SessionID, frame.Transcript, frame.Confidence)
	if err != nil {
		// The reply is still speakable; the fault only concerns operators.
		s.logger.Error("command failed", "session_id", frame.SessionID, "error", err)
	}
	return reply
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.pipeline.Stats()); err != nil {
		s.logger.Warn("encode stats failed", "error", err)
	}
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
