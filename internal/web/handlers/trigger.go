package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/blockedby/cardpost/internal/dispatcher"
	"github.com/blockedby/cardpost/internal/logger"
)

// TriggerHandler runs a dispatch batch on request of an external scheduler.
type TriggerHandler struct {
	runner  DispatchRunner
	secret  string
	timeout time.Duration
	log     *logger.Logger
}

// NewTriggerHandler creates the trigger. An empty secret rejects every call.
// timeout bounds one batch; zero leaves it unbounded.
func NewTriggerHandler(runner DispatchRunner, secret string, timeout time.Duration, log *logger.Logger) *TriggerHandler {
	return &TriggerHandler{
		runner:  runner,
		secret:  secret,
		timeout: timeout,
		log:     log.Component("trigger"),
	}
}

// RequireSecret rejects requests without the shared secret, given either as
// "Authorization: Bearer <secret>" or in X-Dispatch-Secret.
func (h *TriggerHandler) RequireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			h.log.Warn().Str("remote", r.RemoteAddr).Msg("rejected dispatch trigger")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *TriggerHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}

	got := r.Header.Get("X-Dispatch-Secret")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

type runResponse struct {
	*dispatcher.BatchSummary
	Error string `json:"error,omitempty"`
}

// Run processes one batch and returns its summary.
// POST /api/v1/dispatch/run
func (h *TriggerHandler) Run(w http.ResponseWriter, r *http.Request) {
	// a caller hanging up must not abort sends that are mid-delivery
	ctx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	summary, err := h.runner.Run(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("dispatch run failed")
		writeJSON(w, http.StatusInternalServerError, runResponse{BatchSummary: summary, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{BatchSummary: summary})
}
