// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatLines        prometheus.Counter
	ChatUnknownLines prometheus.Counter
	ChatReconnects   prometheus.Counter
	ChatSent         prometheus.Counter
	CommandsExecuted prometheus.Counter
	CommandsRejected prometheus.Counter
	CommandErrors    prometheus.Counter

	// Histograms (seconds)
	CommandDuration prometheus.Observer

	// Gauges
	ConnectionStateGauge prometheus.Gauge // numeric connection state (0=disconnected .. 8=closed)
	UsersInChannelGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatLines = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_lines_total", Help: "Raw lines received from the chat connection"})
		ChatUnknownLines = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_unknown_lines_total", Help: "Lines that matched no known protocol shape"})
		ChatReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Reconnect attempts made by the chat client"})
		ChatSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sent_total", Help: "Lines written to the chat connection"})
		CommandsExecuted = promauto.NewCounter(prometheus.CounterOpts{Name: "commands_executed_total", Help: "Command handlers run to completion"})
		CommandsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "commands_cooldown_rejected_total", Help: "Command invocations rejected by cooldown"})
		CommandErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "command_errors_total", Help: "Command handlers that returned an error or panicked"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "command_duration_seconds", Help: "Command handler duration seconds", Buckets: prometheus.DefBuckets})
		ConnectionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connection_state", Help: "Connection state machine state as a number"})
		UsersInChannelGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_users_in_channel", Help: "Users currently tracked as present in the channel"})
	})
}

// The helpers below are nil-safe so library code can record metrics without
// caring whether Init ran (it doesn't in unit tests).

// CountLine records one received line.
func CountLine() {
	if ChatLines != nil {
		ChatLines.Inc()
	}
}

// CountUnknownLine records a line that matched no grammar pattern.
func CountUnknownLine() {
	if ChatUnknownLines != nil {
		ChatUnknownLines.Inc()
	}
}

// CountReconnect records a reconnect attempt.
func CountReconnect() {
	if ChatReconnects != nil {
		ChatReconnects.Inc()
	}
}

// CountMessageSent records one line written to the connection.
func CountMessageSent() {
	if ChatSent != nil {
		ChatSent.Inc()
	}
}

// CountCommand records a completed command handler run.
func CountCommand() {
	if CommandsExecuted != nil {
		CommandsExecuted.Inc()
	}
}

// CountCooldownRejected records a command invocation blocked by cooldown.
func CountCooldownRejected() {
	if CommandsRejected != nil {
		CommandsRejected.Inc()
	}
}

// CountCommandError records a handler error or panic.
func CountCommandError() {
	if CommandErrors != nil {
		CommandErrors.Inc()
	}
}

// SetConnectionState publishes the state machine's numeric state.
func SetConnectionState(s int) {
	if ConnectionStateGauge != nil {
		ConnectionStateGauge.Set(float64(s))
	}
}

// SetUsersInChannel publishes the current presence count.
func SetUsersInChannel(n int) {
	if UsersInChannelGauge != nil {
		UsersInChannelGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
