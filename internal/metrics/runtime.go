package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolmesh"

// Outcome labels shared by every counter.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var latencyBucketsSeconds = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// Recorder collects connection, tool call and model turn metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	connects     *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolLatency  *prometheus.HistogramVec
	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
}

// NewRecorder creates a recorder backed by its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		connects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_connects_total",
				Help:      "Tool server connection attempts by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls by server and outcome",
			},
			[]string{"server", "outcome"},
		),
		toolLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call latency by server",
				Buckets:   latencyBucketsSeconds,
			},
			[]string{"server"},
		),
		turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_turns_total",
				Help:      "Streaming model turns by outcome",
			},
			[]string{"outcome"},
		),
		turnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_turn_duration_seconds",
				Help:      "Streaming model turn latency",
				Buckets:   latencyBucketsSeconds,
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveConnect records one connection attempt.
func (r *Recorder) ObserveConnect(transport string, err error) {
	if r == nil {
		return
	}
	r.connects.WithLabelValues(transport, Outcome(err)).Inc()
}

// ObserveToolCall records one dispatched tool call. A server-reported tool
// error counts as an error even though the call itself returned.
func (r *Recorder) ObserveToolCall(server string, duration time.Duration, toolErr bool, err error) {
	if r == nil {
		return
	}
	outcome := Outcome(err)
	if outcome == OutcomeOK && toolErr {
		outcome = OutcomeError
	}
	r.toolCalls.WithLabelValues(server, outcome).Inc()
	r.toolLatency.WithLabelValues(server).Observe(nonNegativeSeconds(duration))
}

// ObserveTurn records one streaming model turn.
func (r *Recorder) ObserveTurn(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(Outcome(err)).Inc()
	r.turnDuration.Observe(nonNegativeSeconds(duration))
}

// Outcome classifies err into one of the outcome labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case isTimeoutError(err):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

func nonNegativeSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lowered := strings.ToLower(err.Error())
	return strings.Contains(lowered, "deadline exceeded") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "timed out")
}
