// Package server is the thin HTTP surface over the organism runtime:
// status reads, message turns, and a live update stream. It holds no
// state of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"organism/internal/runtime"
)

// #region server
// Server exposes the organism over HTTP.
type Server struct {
	engine *runtime.Engine
	log    *zap.Logger
	http   *http.Server
}

// New builds the server on addr. Start blocks; Shutdown drains in-flight
// requests.
func New(engine *runtime.Engine, addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{engine: engine, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.HandleFunc("GET /events", s.handleEvents)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the route tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
// #endregion server

// #region handlers
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.Status()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"state": state,
		"at":    time.Now().UTC(),
	})
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	TurnID string             `json:"turn_id"`
	Reply  string             `json:"reply"`
	Reward float64            `json:"reward"`
	State  map[string]float64 `json:"state,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Text == "" {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}

	res, err := s.engine.ProcessTurn(r.Context(), req.Text)
	if err != nil {
		s.log.Error("turn failed", zap.Error(err))
		s.fail(w, http.StatusInternalServerError, fmt.Errorf("turn failed"))
		return
	}
	s.respond(w, http.StatusOK, messageResponse{
		TurnID: res.TurnID,
		Reply:  res.Reply,
		Reward: res.Reward,
		State:  res.State,
	})
}

// handleEvents streams organism updates as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	updates, cancel := s.engine.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(u)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, payload)
			flusher.Flush()
		}
	}
}
// #endregion handlers

// #region responses
func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("encode response failed", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}
// #endregion responses
