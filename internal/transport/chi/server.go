// Package chi exposes the question-answering pipeline over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/config"
	"github.com/cove-labs/concierge/internal/domain"
	askuc "github.com/cove-labs/concierge/internal/usecase/ask"
	healthuc "github.com/cove-labs/concierge/internal/usecase/health"
	recsuc "github.com/cove-labs/concierge/internal/usecase/recs"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// errorResponse is the JSON error envelope for every non-2xx reply.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server routes HTTP requests to the use case services.
type Server struct {
	ask           *askuc.Service
	recs          *recsuc.Service
	health        *healthuc.Service
	flags         Flags
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// Flags is the effective degradation configuration, reported verbatim
// on the flags endpoint.
type Flags struct {
	KeywordOnly           bool `json:"keyword_only"`
	DisableRerank         bool `json:"disable_rerank"`
	DisableLookupFallback bool `json:"disable_lookup_fallback"`
	BypassOnFail          bool `json:"bypass_on_fail"`
	HardTimeoutSec        int  `json:"hard_timeout_sec"`
	LowStockThreshold     int  `json:"low_stock_threshold"`
	SurfaceStockHints     bool `json:"surface_stock_hints"`
}

// FlagsFromConfig collects the flag view of a loaded config.
func FlagsFromConfig(cfg *config.Config) Flags {
	return Flags{
		KeywordOnly:           cfg.Pipeline.KeywordOnly,
		DisableRerank:         cfg.Rerank.Disabled,
		DisableLookupFallback: cfg.Pipeline.DisableLookupFallback,
		BypassOnFail:          cfg.Generation.BypassOnFail,
		HardTimeoutSec:        cfg.Generation.HardTimeoutSec,
		LowStockThreshold:     cfg.Pipeline.LowStockThreshold,
		SurfaceStockHints:     cfg.Pipeline.SurfaceStockHints,
	}
}

// NewServer creates an HTTP API server.
func NewServer(
	ask *askuc.Service,
	recs *recsuc.Service,
	health *healthuc.Service,
	flags Flags,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ask:    ask,
		recs:   recs,
		health: health,
		flags:  flags,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrProviderTimeout, http.StatusGatewayTimeout, "provider_timeout"),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, "provider_error"),
		sentinelHandler(domain.ErrParse, http.StatusBadGateway, "provider_error"),
	}
	return s
}

// askRequest is the body of POST /v1/ask and /v1/ask/debug.
type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Ask handles POST /v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	q, err := domain.NewQuestion(req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ans, err := s.ask.AnswerQuestion(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

// AskDebug handles POST /v1/ask/debug.
func (s *Server) AskDebug(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	q, err := domain.NewQuestion(req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	report, err := s.ask.Debug(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Suggest handles POST /v1/recs/suggest.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	var req recsuc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	items, err := s.recs.Suggest(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if items == nil {
		items = []recsuc.Item{}
	}

	writeJSON(w, http.StatusOK, map[string][]recsuc.Item{"items": items})
}

// GetFlags handles GET /v1/flags.
func (s *Server) GetFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flags)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrProviderTimeout,
		domain.ErrProviderError,
		domain.ErrParse,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
