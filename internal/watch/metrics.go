package watch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/sentinel/internal/analysis"
)

// Metrics holds Prometheus metrics for the event pipeline.
type Metrics struct {
	AnalysesTotal      *prometheus.CounterVec
	AnalysisDuration   *prometheus.HistogramVec
	AnalysesInFlight   prometheus.Gauge
	DispatchedTotal    prometheus.Counter
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteCallDuration prometheus.Histogram
	RemoteTokensIn     prometheus.Counter
	RemoteTokensOut    prometheus.Counter
	FallbacksTotal     *prometheus.CounterVec
	EventsCreatedTotal *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_analyses_total",
			Help: "Total analysis tasks by terminal outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_analysis_duration_seconds",
			Help:    "Duration of analysis tasks from start to write, by strategy that produced the result.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		}, []string{"strategy"}),
		AnalysesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_analysis_in_flight",
			Help: "Analysis tasks dispatched and not yet terminal.",
		}),
		DispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_analyses_dispatched_total",
			Help: "Total analysis tasks dispatched.",
		}),
		RemoteCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_remote_calls_total",
			Help: "Total remote analysis calls by result (ok or failure reason).",
		}, []string{"result"}),
		RemoteCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_remote_call_duration_seconds",
			Help:    "Duration of remote analysis calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. 64s
		}),
		RemoteTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_remote_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		RemoteTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_remote_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_fallbacks_total",
			Help: "Remote analyses replaced by the fallback strategy, by reason.",
		}, []string{"reason"}),
		EventsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_events_created_total",
			Help: "Event creation attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.AnalysesInFlight,
		m.DispatchedTotal,
		m.RemoteCallsTotal,
		m.RemoteCallDuration,
		m.RemoteTokensIn,
		m.RemoteTokensOut,
		m.FallbacksTotal,
		m.EventsCreatedTotal,
	)

	return m
}

// Hooks returns analysis.Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() analysis.Hooks {
	return analysis.Hooks{
		OnRemoteCall: func(duration float64, reason analysis.FailureReason, usage analysis.Usage) {
			result := "ok"
			if reason != analysis.ReasonNone {
				result = string(reason)
			}
			m.RemoteCallsTotal.WithLabelValues(result).Inc()
			if reason != analysis.ReasonRateLimited {
				m.RemoteCallDuration.Observe(duration)
			}
			m.RemoteTokensIn.Add(float64(usage.InputTokens))
			m.RemoteTokensOut.Add(float64(usage.OutputTokens))
		},
		OnFallback: func(reason analysis.FailureReason) {
			m.FallbacksTotal.WithLabelValues(string(reason)).Inc()
		},
	}
}
