// Package httpapi exposes health, metrics and the scheduler control routes.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vipul43/kiwis-sync-scheduler/internal/scheduler"
)

const (
	SecretHeader = "X-Webhook-Secret"

	maxBodyBytes = 1 << 16
)

// Controller is the scheduler control surface
type Controller interface {
	Start() error
	Stop()
	TriggerManualSync(accountID string)
	Status(ctx context.Context) scheduler.Status
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ControlResponse struct {
	Armed   bool   `json:"armed"`
	Message string `json:"message"`
}

type TriggerRequest struct {
	AccountID string `json:"account_id"`
}

type TriggerResponse struct {
	Accepted  bool   `json:"accepted"`
	AccountID string `json:"account_id,omitempty"`
	Message   string `json:"message"`
}

type routes struct {
	ctrl   Controller
	logger *zap.SugaredLogger
}

// NewRouter builds the HTTP handler. Every /api route requires secret; an empty
// secret rejects them all.
func NewRouter(ctrl Controller, secret string, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) http.Handler {
	rr := &routes{ctrl: ctrl, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger))

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/scheduler", func(r chi.Router) {
		r.Use(RequireSecret(secret, logger))
		r.Get("/status", rr.status)
		r.Post("/start", rr.start)
		r.Post("/stop", rr.stop)
		r.Post("/trigger", rr.trigger)
	})

	return r
}

// NewServer wraps handler in an http.Server with conservative timeouts
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// RequireSecret accepts the shared secret from the X-Webhook-Secret header or
// an Authorization bearer token
func RequireSecret(secret string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(SecretHeader)
			if provided == "" {
				if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					provided = strings.TrimSpace(token)
				}
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				logger.Warnw("Rejected unauthorized control request",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debugw("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status handles GET /api/scheduler/status
func (rr *routes) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rr.ctrl.Status(r.Context()))
}

// start handles POST /api/scheduler/start
func (rr *routes) start(w http.ResponseWriter, _ *http.Request) {
	if err := rr.ctrl.Start(); err != nil {
		rr.logger.Errorw("Failed to start scheduler", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to start scheduler"})
		return
	}
	writeJSON(w, http.StatusOK, ControlResponse{Armed: true, Message: "scheduler started"})
}

// stop handles POST /api/scheduler/stop
func (rr *routes) stop(w http.ResponseWriter, _ *http.Request) {
	rr.ctrl.Stop()
	writeJSON(w, http.StatusOK, ControlResponse{Armed: false, Message: "scheduler stopped"})
}

// trigger handles POST /api/scheduler/trigger. The body is optional; without
// an account_id a full sweep is started.
func (rr *routes) trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	accountID := strings.TrimSpace(req.AccountID)
	rr.ctrl.TriggerManualSync(accountID)

	resp := TriggerResponse{Accepted: true, AccountID: accountID, Message: "full sweep started"}
	if accountID != "" {
		resp.Message = "account sync started"
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
