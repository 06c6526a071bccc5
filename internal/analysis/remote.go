package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/analysis")

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 1024
)

// FailureReason classifies why a remote call produced no usable result.
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonTransport     FailureReason = "transport"
	ReasonTimeout       FailureReason = "timeout"
	ReasonRateLimited   FailureReason = "rate_limited"
	ReasonEmptyResponse FailureReason = "empty_response"
	ReasonParse         FailureReason = "parse"
	ReasonMissingField  FailureReason = "missing_field"
)

// Outcome is the result of one remote attempt: either Result is set, or Reason
// and Err describe the failure.
type Outcome struct {
	Result   *Result
	Reason   FailureReason
	Err      error
	Model    string
	Duration time.Duration
	Usage    Usage
}

// OK reports whether the attempt produced a result.
func (o *Outcome) OK() bool {
	return o.Result != nil && o.Reason == ReasonNone
}

func failed(reason FailureReason, err error) *Outcome {
	return &Outcome{Reason: reason, Err: err}
}

// RemoteOptions tunes a Remote strategy. Zero values select defaults.
type RemoteOptions struct {
	Timeout   time.Duration
	MaxTokens int
	// Limiter, when set, bounds the call rate. A call that would exceed it is
	// reported as ReasonRateLimited rather than waiting.
	Limiter *rate.Limiter
}

// Remote asks an LLM for the analysis. It never retries.
type Remote struct {
	provider  Provider
	timeout   time.Duration
	maxTokens int
	limiter   *rate.Limiter
}

// NewRemote creates a Remote strategy over the given provider.
func NewRemote(provider Provider, opts RemoteOptions) *Remote {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Remote{
		provider:  provider,
		timeout:   opts.Timeout,
		maxTokens: opts.MaxTokens,
		limiter:   opts.Limiter,
	}
}

// Analyze performs a single remote attempt.
func (r *Remote) Analyze(ctx context.Context, in *Input) *Outcome {
	ctx, span := tracer.Start(ctx, "analysis.remote", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "analysis.remote"),
		attribute.String("sentinel.event.type", in.EventType),
		attribute.Int("sentinel.watchlist.terms", len(in.Terms)),
	))
	defer span.End()

	out := r.attempt(ctx, in)

	span.SetAttributes(attribute.String("gen_ai.response.model", out.Model))
	if !out.OK() {
		span.SetAttributes(attribute.String("sentinel.analysis.failure_reason", string(out.Reason)))
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	} else {
		span.SetAttributes(attribute.String("sentinel.analysis.severity", string(out.Result.Severity)))
	}
	return out
}

func (r *Remote) attempt(ctx context.Context, in *Input) *Outcome {
	if r.limiter != nil && !r.limiter.Allow() {
		return failed(ReasonRateLimited, errors.New("remote call rate limit exceeded"))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.provider.Send(ctx, &LLMRequest{
		MaxTokens: r.maxTokens,
		System:    systemPrompt,
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{{Type: "text", Text: buildPrompt(in)}}},
		},
	})
	dur := time.Since(start)

	if err != nil {
		reason := ReasonTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		out := failed(reason, fmt.Errorf("llm call: %w", err))
		out.Duration = dur
		return out
	}
	if resp == nil {
		out := failed(ReasonEmptyResponse, errEmptyResponse)
		out.Duration = dur
		return out
	}

	out := &Outcome{Model: resp.Model, Duration: dur, Usage: resp.Usage}

	res, err := parseResult(resp.Text())
	if err != nil {
		var mf *missingFieldError
		switch {
		case errors.Is(err, errEmptyResponse):
			out.Reason = ReasonEmptyResponse
		case errors.As(err, &mf):
			out.Reason = ReasonMissingField
		default:
			out.Reason = ReasonParse
		}
		out.Err = fmt.Errorf("parse llm response: %w", err)
		return out
	}

	out.Result = res
	return out
}
