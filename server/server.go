// Package server hosts a Pod over HTTP, server-sent events and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/boat-builder/agentruntime"
	"golang.org/x/net/websocket"
)

const (
	DefaultPrompt   = "Hello!"
	SessionHeader   = "X-Session-Id"
	maxRequestBytes = 1 << 20
)

type Server struct {
	pod         *agentruntime.Pod
	serviceName string
	features    []string
	logger      *slog.Logger
	mux         *http.ServeMux
}

type Option func(*Server)

func WithServiceName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// WithFeatures sets the feature list reported by /ping.
func WithFeatures(features ...string) Option {
	return func(s *Server) {
		s.features = append([]string(nil), features...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(pod *agentruntime.Pod, opts ...Option) *Server {
	s := &Server{
		pod:         pod,
		serviceName: "agentruntime",
		features:    []string{"streaming", "multi_turn", "tool_calls"},
		logger:      slog.Default(),
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /invocations", s.handleInvocations)
	s.mux.HandleFunc("GET /ping", s.handlePing)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	// non-browser clients send no Origin header
	s.mux.Handle("GET /ws", websocket.Server{
		Handler:   s.handleWebSocket,
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = srv.Close()
	}
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// session resumes the session named by the X-Session-Id header. Requests without one get a new
// session whose ID is returned in the same header.
func (s *Server) session(r *http.Request) (*agentruntime.Session, error) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		return s.pod.NewSession(r.Context())
	}
	return s.pod.GetOrCreate(r.Context(), id)
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	var req agentruntime.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = DefaultPrompt
	}

	sess, err := s.session(r)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, agentruntime.Result{Error: err.Error(), ErrorType: agentruntime.ErrorType(err)})
		return
	}
	w.Header().Set(SessionHeader, sess.ID())
	logger := s.logger.With("sessionID", sess.ID(), "streaming", req.Streaming)
	logger.Info("Invocation started")

	if !req.Streaming {
		result := sess.Complete(r.Context(), req.Prompt)
		if result.Failed() {
			logger.Error("Invocation failed", "error", result.Error, "errorType", result.ErrorType)
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := sess.Stream(r.Context(), req.Prompt)
	defer stream.Close()
	for chunk := range stream.Chunks() {
		data, err := json.Marshal(chunk)
		if err != nil {
			logger.Error("Error marshalling chunk", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Warn("Client went away", "error", err)
			return
		}
		flusher.Flush()
	}
	logger.Info("Invocation finished", "state", stream.State().String())
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  s.serviceName,
		"version":  agentruntime.Version,
		"features": s.features,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.pod.Sessions()})
}

type sessionView struct {
	SessionID string                    `json:"session_id"`
	Messages  []agentruntime.Message    `json:"messages"`
	Usage     agentruntime.Usage        `json:"usage"`
	Cost      *agentruntime.CostDetails `json:"cost,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.pod.Session(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	view := sessionView{
		SessionID: sess.ID(),
		Messages:  sess.History().Snapshot(),
		Usage:     sess.Usage(),
	}
	if cost, ok := sess.Cost(); ok {
		view.Cost = cost
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.pod.CloseSession(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket runs one session per connection. Each incoming frame is a Request; replies are
// a Result envelope or, for streaming requests, one frame per chunk.
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	sess, err := s.pod.NewSession(ctx)
	if err != nil {
		_ = websocket.JSON.Send(ws, agentruntime.Result{Error: err.Error(), ErrorType: agentruntime.ErrorType(err)})
		return
	}
	defer s.pod.CloseSession(sess.ID())
	logger := s.logger.With("sessionID", sess.ID())
	logger.Info("WebSocket connected")

	for {
		var req agentruntime.Request
		if err := websocket.JSON.Receive(ws, &req); err != nil {
			logger.Info("WebSocket closed", "error", err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			req.Prompt = DefaultPrompt
		}

		reply := sess.Invoke(ctx, req)
		if reply.Result != nil {
			if err := websocket.JSON.Send(ws, reply.Result); err != nil {
				return
			}
			continue
		}
		for chunk := range reply.Stream.Chunks() {
			if err := websocket.JSON.Send(ws, chunk); err != nil {
				reply.Stream.Close()
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}
