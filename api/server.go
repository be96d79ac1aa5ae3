// Package api serves the verity engine over HTTP.
//
// Every /v1 route requires a bearer token; its subject is the calling
// principal passed to the engine. Engine errors map to status codes by
// kind: validation 400, not found 404, authorization 403, state 409,
// economic 402, window 425 and internal 500.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/xraph/verity"
)

// Server holds the HTTP handlers.
type Server struct {
	engine  *verity.Engine
	auth    *Auth
	limiter *RateLimiter
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimiter enables per-principal rate limiting.
func WithRateLimiter(rl *RateLimiter) Option { return func(s *Server) { s.limiter = rl } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

func New(engine *verity.Engine, auth *Auth, opts ...Option) *Server {
	s := &Server{engine: engine, auth: auth, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Route("/producers", func(r chi.Router) {
			r.Post("/", s.handleRegister)
			r.Get("/", s.handleListProducers)
			r.Route("/{producerID}", func(r chi.Router) {
				r.Get("/", s.handleGetProducer)
				r.Post("/stake", s.handleAddStake)
				r.Post("/stake/withdraw", s.handleWithdrawStake)
				r.Post("/slash", s.handleSlash)
				r.Put("/reputation", s.handleReputation)
				r.Post("/ban", s.handleBan)
				r.Post("/unban", s.handleUnban)
				r.Post("/deactivate", s.handleDeactivate)
				r.Get("/description", s.handleProducerDescription)
				r.Put("/description", s.handleDescribeProducer)
				r.Post("/events", s.handleScheduleEvent)
				r.Get("/events", s.handleListEvents)
				r.Get("/earnings", s.handleGetEarnings)
				r.Post("/earnings/withdraw", s.handleWithdrawEarnings)
			})
		})

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/", s.handleGetEvent)
			r.Get("/description", s.handleEventDescription)
			r.Put("/description", s.handleDescribeEvent)
			r.Post("/result", s.handleSubmitResult)
			r.Get("/result", s.handleGetFullResult)
			r.Get("/result/status", s.handleResultStatus)
			r.Get("/result/fields/{key}", s.handleGetResultField)
			r.Post("/result/finalize", s.handleFinalize)
			r.Post("/charge", s.handleChargeQuery)
			r.Get("/access", s.handleHasAccess)
			r.Post("/disputes", s.handleCreateDispute)
		})

		r.Get("/results/pending", s.handleListPending)
		r.Post("/results/finalize", s.handleBatchFinalize)

		r.Get("/disputes", s.handleListDisputes)
		r.Get("/disputes/{disputeID}", s.handleGetDispute)
		r.Post("/disputes/{disputeID}/resolve", s.handleResolveDispute)

		r.Get("/account", s.handleGetAccount)
		r.Post("/account/deposits", s.handleDeposit)
		r.Get("/account/charges", s.handleListCharges)

		r.Get("/pools", s.handleGetPools)
		r.Post("/pools/treasury/payouts", s.handlePayoutTreasury)
		r.Post("/pools/challenger/payouts", s.handlePayoutChallenger)

		r.Get("/params", s.handleGetParams)
		r.Put("/params", s.handleUpdateParams)
		r.Get("/params/history", s.handleParamsHistory)
		r.Put("/params/admins/{principal}", s.handleAddAdmin)
		r.Delete("/params/admins/{principal}", s.handleRemoveAdmin)
		r.Put("/params/resolvers/{principal}", s.handleAddResolver)
		r.Delete("/params/resolvers/{principal}", s.handleRemoveResolver)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]any{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.engine.Store().Ping(ctx); err != nil {
		status["ok"] = false
		status["store"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ──────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────

const requestIDHeader = "X-Request-ID"

// requestID propagates the caller's request ID or assigns a fresh UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ──────────────────────────────────────────────────
// Responses
// ──────────────────────────────────────────────────

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}

// respondEngineError maps an engine failure to a status code.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := verity.KindOf(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Default().Error("engine failure",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	retry := verity.IsRetryable(err)
	if retry {
		w.Header().Set("Retry-After", strconv.Itoa(1))
	}
	respondJSON(w, status, errorBody{
		Error:     err.Error(),
		Kind:      kind.String(),
		Retryable: retry,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func statusFor(err error) int {
	if verity.IsNotFound(err) {
		return http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	switch verity.KindOf(err) {
	case verity.KindValidation:
		return http.StatusBadRequest
	case verity.KindAuthorization:
		return http.StatusForbidden
	case verity.KindState:
		return http.StatusConflict
	case verity.KindEconomic:
		return http.StatusPaymentRequired
	case verity.KindWindow:
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
