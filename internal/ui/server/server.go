package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/app"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/config"
	domainerrors "github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/errors"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/observability"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/util"
)

const maxSourceBytes = 1 << 20

// Server exposes the analysis pipeline over HTTP: POST /analyze plus
// /health and /metrics.
type Server struct {
	addr    string
	app     *app.App
	limiter *util.Limiter
	server  *http.Server
}

func New(cfg config.Server, application *app.App) *Server {
	return &Server{
		addr:    cfg.Address,
		app:     application,
		limiter: util.NewLimiter(cfg.RateLimit, cfg.Burst),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("analyze server starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("analyze server failed", "error", err)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "", "POST required")
		return
	}
	if !s.limiter.Allow(1) {
		s.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return
	}

	var req app.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSourceBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, string(domainerrors.CodeValidation), fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, string(domainerrors.CodeValidation), "source is required")
		return
	}

	result, err := s.app.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), errorCode(err), err.Error())
		return
	}

	observability.HTTPRequestsTotal.WithLabelValues("200").Inc()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("failed to encode analyze response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "up"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	observability.HTTPRequestsTotal.WithLabelValues(fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, Code: code})
}

func statusFor(err error) int {
	switch {
	case domainerrors.IsCode(err, domainerrors.CodeParseError),
		domainerrors.IsCode(err, domainerrors.CodeValidation):
		return http.StatusUnprocessableEntity
	case domainerrors.IsCode(err, domainerrors.CodeConfigError):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	for _, code := range []domainerrors.ErrorCode{
		domainerrors.CodeParseError,
		domainerrors.CodeValidation,
		domainerrors.CodeConfigError,
		domainerrors.CodeNotFound,
	} {
		if domainerrors.IsCode(err, code) {
			return string(code)
		}
	}
	return string(domainerrors.CodeInternal)
}
