// Package server exposes the HTTP surface: health, readiness, status, and
// metrics. It injects correlation IDs into request contexts for consistent
// logging and starts a tracing span per request.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/twitchbot/client"
	"github.com/onnwee/twitchbot/telemetry"
)

// Connection is the view of the chat client the endpoints need.
// *client.Client satisfies it.
type Connection interface {
	State() client.State
	Channel() string
	ReconnectAttempts() int
	PendingAction() string
}

// Presence is the view of the channel tracker the endpoints need.
// *channel.Channel satisfies it.
type Presence interface {
	UserCount() int
}

// Status is the /status response body.
type Status struct {
	State             string `json:"state"`
	Channel           string `json:"channel"`
	UsersInChannel    int    `json:"users_in_channel"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	PendingAction     string `json:"pending_action,omitempty"`
}

// Handlers serves the HTTP endpoints from live bot state.
type Handlers struct {
	Client  Connection
	Tracker Presence
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports readiness: 200 only once the channel join is confirmed.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil || h.Client.State() != client.StateJoined {
		http.Error(w, "not joined", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HandleStatus returns a JSON snapshot of the connection and channel state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{}
	if h.Client != nil {
		st.State = h.Client.State().String()
		st.Channel = h.Client.Channel()
		st.ReconnectAttempts = h.Client.ReconnectAttempts()
		st.PendingAction = h.Client.PendingAction()
	}
	if h.Tracker != nil {
		st.UsersInChannel = h.Tracker.UserCount()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("encode status", slog.Any("err", err))
	}
}

// NewMux returns the HTTP handler with all routes.
func NewMux(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/status", h.HandleStatus)

	// Correlation ID injector and tracing wrapper.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, h *Handlers, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
