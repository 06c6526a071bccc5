package analysis

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/correlation"
)

// Mode is the strategy pinned at startup.
type Mode string

const (
	ModeRemote   Mode = "remote"
	ModeFallback Mode = "fallback"
)

// Strategy names which implementation produced a Report.
type Strategy string

const (
	StrategyRemote   Strategy = "remote"
	StrategyFallback Strategy = "fallback"
)

// Report is what the Selector hands back for one analysis call. Result is
// always set.
type Report struct {
	Result   *Result
	Strategy Strategy
	// Demoted is true when the remote strategy was attempted and failed.
	Demoted  bool
	Reason   FailureReason
	Err      error
	Model    string
	Duration time.Duration
}

// Hooks receives per-call notifications, typically for metrics.
// All fields are optional.
type Hooks struct {
	OnRemoteCall func(duration float64, reason FailureReason, usage Usage)
	OnFallback   func(reason FailureReason)
}

// Selector chooses between the remote and fallback strategies. The mode is
// fixed at construction; demotion to the fallback happens per call only.
type Selector struct {
	mode     Mode
	remote   *Remote
	fallback Fallback
	logger   log.Logger
	hooks    Hooks
}

// NewSelector pins the remote strategy when remote is non-nil, otherwise the
// fallback, and logs the chosen mode once.
func NewSelector(ctx context.Context, remote *Remote, logger log.Logger, hooks Hooks) *Selector {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Selector{
		mode:   ModeFallback,
		remote: remote,
		logger: logger,
		hooks:  hooks,
	}
	if remote != nil {
		s.mode = ModeRemote
	}

	s.logger.Info(ctx, "analysis strategy selected", "mode", s.mode)
	return s
}

// Mode returns the pinned strategy mode.
func (s *Selector) Mode() Mode {
	return s.mode
}

// Analyze runs the pinned strategy. In remote mode any remote failure is
// replaced by the fallback result for the same input, with no retry.
func (s *Selector) Analyze(ctx context.Context, in *Input) *Report {
	start := time.Now()

	if s.mode == ModeFallback {
		return &Report{
			Result:   s.fallback.Analyze(ctx, in),
			Strategy: StrategyFallback,
			Duration: time.Since(start),
		}
	}

	out := s.remote.Analyze(ctx, in)
	if s.hooks.OnRemoteCall != nil {
		s.hooks.OnRemoteCall(out.Duration.Seconds(), out.Reason, out.Usage)
	}

	if out.OK() {
		return &Report{
			Result:   out.Result,
			Strategy: StrategyRemote,
			Model:    out.Model,
			Duration: time.Since(start),
		}
	}

	s.logger.Warn(ctx, "remote analysis failed, using fallback",
		"correlation_id", correlation.FromContext(ctx),
		"reason", out.Reason,
		"error", out.Err,
		"llm_duration", out.Duration.Seconds(),
	)
	if s.hooks.OnFallback != nil {
		s.hooks.OnFallback(out.Reason)
	}

	return &Report{
		Result:   s.fallback.Analyze(ctx, in),
		Strategy: StrategyFallback,
		Demoted:  true,
		Reason:   out.Reason,
		Err:      out.Err,
		Model:    out.Model,
		Duration: time.Since(start),
	}
}
