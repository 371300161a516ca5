package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const serviceVersion = "1.0.0"

// transcriptRequest is the body of POST /process, as sent by the voice
// daemon's forward client.
type transcriptRequest struct {
	Transcript string `json:"transcript"`
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
	WakeWord   string `json:"wake_word"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server exposes the agent over HTTP.
type Server struct {
	agent *Agent
	tools *Registry
	model string
	log   zerolog.Logger
	https *http.Server
}

func NewServer(cfg Config, agent *Agent, tools *Registry, log zerolog.Logger) *Server {
	s := &Server{
		agent: agent,
		tools: tools,
		model: cfg.Model,
		log:   log.With().Str("component", "server").Logger(),
	}

	router := httprouter.New()
	router.POST("/process", s.handleProcess)
	router.GET("/health", s.handleHealth)
	router.GET("/", s.handleIndex)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	s.https = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops. It returns nil after a
// clean Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.https.Addr).Msg("Agent server listening")
	err := s.https.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.https.Shutdown(ctx)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.NewString()
	log := s.log.With().Str("request_id", requestID).Logger()

	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "invalid JSON body",
		})
		return
	}
	if req.Transcript == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "Missing 'transcript' in request",
		})
		return
	}

	log.Info().
		Str("transcript", req.Transcript).
		Str("source", req.Source).
		Str("wake_word", req.WakeWord).
		Msg("Received transcript")

	result, err := s.agent.Run(r.Context(), req.Transcript)
	if err != nil {
		log.Error().Err(err).Msg("Agent run failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         "edgevoice-agent",
		"model":           s.model,
		"tools_available": s.tools.Names(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "EdgeVoice Inference Agent",
		"version":     serviceVersion,
		"description": "Reasoning agent for voice commands",
		"endpoints": map[string]string{
			"/process": "POST - Process voice transcript",
			"/health":  "GET - Health check",
			"/metrics": "GET - Prometheus metrics",
		},
		"tools": s.tools.Names(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"status":"error"}`)
	}
}
