// Package webhook receives inbound reply callbacks from the messaging
// provider and hands them to the run coordinator.
package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodySize     = 1024 * 1024 // 1MB max request body
)

// InboundHandler consumes one parsed inbound reply.
type InboundHandler interface {
	OnInboundReply(ctx context.Context, phone, text, payload string) error
}

// Server is the HTTP endpoint the provider posts inbound messages to. The
// payload is the form-encoded shape WhatsApp gateways use: From, Body and
// the pressed button under ButtonPayload or ButtonText.
type Server struct {
	server  *http.Server
	port    int
	token   string
	handler InboundHandler
	logger  *slog.Logger
	mu      sync.RWMutex
	started bool
}

// NewServer creates an inbound webhook server. When token is non-empty,
// requests must carry it in the X-Webhook-Token header.
func NewServer(port int, token string, handler InboundHandler, logger *slog.Logger) *Server {
	return &Server{
		port:    port,
		token:   token,
		handler: handler,
		logger:  logger.With("module", "webhook_server", "port", port),
	}
}

// Start begins serving. Shutdown happens on context cancellation or Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", s.handleInbound)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	s.started = true
	s.logger.Info("Starting inbound webhook server", "addr", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Webhook server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	return nil
}

// Stop gracefully shuts down the webhook server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping webhook server")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", "error", err)

		return err
	}

	s.started = false

	return nil
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	if s.token != "" {
		got := r.Header.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)

		return
	}

	phone := strings.TrimSpace(r.PostFormValue("From"))
	text := r.PostFormValue("Body")

	payload := r.PostFormValue("ButtonPayload")
	if payload == "" {
		payload = r.PostFormValue("ButtonText")
	}

	if phone == "" {
		http.Error(w, "missing From", http.StatusBadRequest)

		return
	}

	s.logger.Info("Inbound message received",
		"phone", phone, "has_payload", payload != "", "body_length", len(text))

	if err := s.handler.OnInboundReply(r.Context(), phone, text, payload); err != nil {
		s.logger.Error("Failed to process inbound message", "phone", phone, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
