// Package gateway exposes the WhatsApp webhook, health, and metrics
// endpoints over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whatspr/whatspr/internal/config"
	"github.com/whatspr/whatspr/internal/retry"
	"github.com/whatspr/whatspr/internal/runner"
	"github.com/whatspr/whatspr/internal/sessions"
)

const invalidMessageReply = "Please send text."

// TurnProcessor handles one cleaned inbound message.
type TurnProcessor interface {
	HandleTurn(ctx context.Context, userID, message string) runner.TurnResult
}

// OrchestratorStats exposes retry counters for the health endpoint.
type OrchestratorStats interface {
	Metrics() retry.OrchestratorMetrics
}

// Server serves the webhook endpoints.
type Server struct {
	addr     string
	handler  TurnProcessor
	sessions *sessions.Store
	budgets  *config.BudgetStore
	stats    OrchestratorStats
	registry *prometheus.Registry
	log      *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// Options configures the server. Registry and Stats may be nil.
type Options struct {
	Addr     string
	Handler  TurnProcessor
	Sessions *sessions.Store
	Budgets  *config.BudgetStore
	Stats    OrchestratorStats
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// NewServer builds the HTTP surface without binding a socket.
func NewServer(opts Options) *Server {
	return &Server{
		addr:     opts.Addr,
		handler:  opts.Handler,
		sessions: opts.Sessions,
		budgets:  opts.Budgets,
		stats:    opts.Stats,
		registry: opts.Registry,
		log:      opts.Logger,
	}
}

// Routes returns the handler tree, usable directly in tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /whatsapp", s.handleWebhook)
	mux.HandleFunc("POST /agent", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listener and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http_server_error", "error", err)
		}
	}()
	s.log.Info("http_server_started", "addr", s.addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	if err := r.ParseForm(); err != nil {
		s.log.Warn("bad_form", "request_id", requestID, "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	clean, ok := CleanMessage(body)
	if !ok {
		s.reply(w, requestID, invalidMessageReply)
		return
	}

	result := s.handler.HandleTurn(r.Context(), from, clean)
	s.log.Info("turn_handled",
		"request_id", requestID,
		"user", hashTail(from),
		"reply_length", len(result.ReplyText),
		"tool_count", len(result.ToolCalls),
		"elapsed", time.Since(start),
	)
	s.reply(w, requestID, result.ReplyText)
}

func (s *Server) reply(w http.ResponseWriter, requestID, text string) {
	if err := writeTwiML(w, text); err != nil {
		s.log.Error("twiml_write_failed", "request_id", requestID, "error", err)
	}
}

type healthPayload struct {
	Status       string                    `json:"status"`
	Sessions     sessions.Metrics          `json:"sessions"`
	Budget       config.TimeoutBudget      `json:"budget"`
	Orchestrator retry.OrchestratorMetrics `json:"orchestrator"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := healthPayload{Status: "ok"}
	if s.sessions != nil {
		payload.Sessions = s.sessions.Metrics()
	}
	if s.budgets != nil {
		payload.Budget = s.budgets.Current()
	}
	if s.stats != nil {
		payload.Orchestrator = s.stats.Metrics()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("health_encode_failed", "error", err)
	}
}

func hashTail(userID string) string {
	if len(userID) <= 4 {
		return userID
	}
	return userID[len(userID)-4:]
}
