package watch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/analysis"
)

// TaskState is the lifecycle of one analysis task:
// Scheduled -> Running -> Succeeded | Failed. Both terminal states are final.
type TaskState string

const (
	TaskScheduled TaskState = "scheduled"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Stats is a read-only snapshot of task counters.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	InFlight   int64 `json:"inFlight"`
	Running    int64 `json:"running"`
	Remote     int64 `json:"remote"`
	Fallback   int64 `json:"fallback"`
	Demoted    int64 `json:"demoted"`
}

// Sink records the dispatch, success and failure of analysis tasks as
// structured log lines, Prometheus metrics and in-process counters.
type Sink struct {
	logger  log.Logger
	metrics *Metrics

	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	running    atomic.Int64
	remote     atomic.Int64
	fallback   atomic.Int64
	demoted    atomic.Int64
}

// NewSink creates a Sink. metrics may be nil.
func NewSink(logger log.Logger, metrics *Metrics) *Sink {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sink{logger: logger, metrics: metrics}
}

// Dispatched records that a task was scheduled for ev.
func (s *Sink) Dispatched(ctx context.Context, ev *Event, correlationID string) {
	s.dispatched.Add(1)
	if s.metrics != nil {
		s.metrics.DispatchedTotal.Inc()
		s.metrics.AnalysesInFlight.Inc()
	}
	s.logger.Info(ctx, "analysis dispatched",
		"state", TaskScheduled,
		"event_id", ev.ID,
		"event_type", ev.Type,
		"watchlist_id", ev.WatchlistID,
		"correlation_id", correlationID,
	)
}

// Running records that the task for eventID holds a concurrency slot and is
// about to analyze. queued is the time spent waiting for the slot.
func (s *Sink) Running(ctx context.Context, eventID, correlationID string, queued time.Duration) {
	s.running.Add(1)
	s.logger.Info(ctx, "analysis running",
		"state", TaskRunning,
		"event_id", eventID,
		"correlation_id", correlationID,
		"queued", queued.Seconds(),
	)
}

// released pairs with Running once the task gives its slot back.
func (s *Sink) released() {
	s.running.Add(-1)
}

// Succeeded records that the task for eventID wrote its result.
func (s *Sink) Succeeded(ctx context.Context, eventID string, rep *analysis.Report, correlationID string, dur time.Duration) {
	s.succeeded.Add(1)
	if rep.Strategy == analysis.StrategyRemote {
		s.remote.Add(1)
	} else {
		s.fallback.Add(1)
	}
	if rep.Demoted {
		s.demoted.Add(1)
	}
	if s.metrics != nil {
		s.metrics.AnalysesInFlight.Dec()
		s.metrics.AnalysesTotal.WithLabelValues(string(TaskSucceeded)).Inc()
		s.metrics.AnalysisDuration.WithLabelValues(string(rep.Strategy)).Observe(dur.Seconds())
	}
	s.logger.Info(ctx, "analysis succeeded",
		"state", TaskSucceeded,
		"event_id", eventID,
		"severity", rep.Result.Severity,
		"strategy", rep.Strategy,
		"demoted", rep.Demoted,
		"correlation_id", correlationID,
		"duration", dur.Seconds(),
	)
}

// Failed records that the task for eventID ended without a stored result.
func (s *Sink) Failed(ctx context.Context, eventID string, err error, correlationID string, dur time.Duration) {
	s.failed.Add(1)
	if s.metrics != nil {
		s.metrics.AnalysesInFlight.Dec()
		s.metrics.AnalysesTotal.WithLabelValues(string(TaskFailed)).Inc()
	}
	s.logger.Error(ctx, err, "analysis failed",
		"state", TaskFailed,
		"event_id", eventID,
		"correlation_id", correlationID,
		"duration", dur.Seconds(),
	)
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	st := Stats{
		Dispatched: s.dispatched.Load(),
		Succeeded:  s.succeeded.Load(),
		Failed:     s.failed.Load(),
		Running:    s.running.Load(),
		Remote:     s.remote.Load(),
		Fallback:   s.fallback.Load(),
		Demoted:    s.demoted.Load(),
	}
	st.InFlight = st.Dispatched - st.Succeeded - st.Failed
	return st
}
