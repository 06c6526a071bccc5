package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"
)

const testModel = "claude-sonnet-4-20250514"

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	delay     time.Duration
	calls     int
	requests  []*LLMRequest
}

func (m *mockProvider) Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return textResponse(`{"summary":"default","severity":"LOW","suggestedAction":"none"}`), nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textResponse(text string) *LLMResponse {
	return &LLMResponse{
		Content:    []ContentBlock{{Type: "text", Text: text}},
		StopReason: StopEnd,
		Usage:      Usage{InputTokens: 120, OutputTokens: 40},
		Model:      testModel,
	}
}

func testInput() *Input {
	return &Input{
		EventType:   "malware_detection",
		Description: "Malware signature detected",
		Metadata:    map[string]any{"host": "web-01", "count": 3.0},
		Terms:       []string{"malware", "phishing"},
	}
}

func TestRemote_Success(t *testing.T) {
	t.Parallel()

	p := &mockProvider{responses: []*LLMResponse{
		textResponse(`{"summary":"Malware on web-01","severity":"HIGH","suggestedAction":"Isolate web-01"}`),
	}}
	r := NewRemote(p, RemoteOptions{})

	out := r.Analyze(context.Background(), testInput())
	if !out.OK() {
		t.Fatalf("outcome not ok: reason=%q err=%v", out.Reason, out.Err)
	}
	if out.Result.Severity != SeverityHigh {
		t.Errorf("severity = %q, want %q", out.Result.Severity, SeverityHigh)
	}
	if out.Model != testModel {
		t.Errorf("model = %q, want %q", out.Model, testModel)
	}
	if out.Usage.InputTokens != 120 {
		t.Errorf("input tokens = %d, want 120", out.Usage.InputTokens)
	}
}

func TestRemote_PromptEmbedsInputs(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	r := NewRemote(p, RemoteOptions{MaxTokens: 512})
	r.Analyze(context.Background(), testInput())

	if len(p.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(p.requests))
	}
	req := p.requests[0]
	if req.MaxTokens != 512 {
		t.Errorf("max tokens = %d, want 512", req.MaxTokens)
	}
	if !strings.Contains(req.System, `"suggestedAction"`) {
		t.Error("system prompt does not describe the output object")
	}
	prompt := req.Messages[0].Content[0].Text
	for _, want := range []string{"malware_detection", "Malware signature detected", `"host": "web-01"`, "malware, phishing"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRemote_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		p      *mockProvider
		reason FailureReason
	}{
		{"transport error", &mockProvider{errs: []error{errors.New("connection refused")}}, ReasonTransport},
		{"deadline error", &mockProvider{errs: []error{context.DeadlineExceeded}}, ReasonTimeout},
		{"unparseable", &mockProvider{responses: []*LLMResponse{textResponse("not json at all")}}, ReasonParse},
		{"missing field", &mockProvider{responses: []*LLMResponse{textResponse(`{"summary":"s"}`)}}, ReasonMissingField},
		{"empty text", &mockProvider{responses: []*LLMResponse{{StopReason: StopMaxTokens}}}, ReasonEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := NewRemote(tt.p, RemoteOptions{}).Analyze(context.Background(), testInput())
			if out.OK() {
				t.Fatal("expected failure outcome")
			}
			if out.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", out.Reason, tt.reason)
			}
			if out.Err == nil {
				t.Error("expected non-nil Err")
			}
			if tt.p.callCount() != 1 {
				t.Errorf("provider calls = %d, want 1 (no retry)", tt.p.callCount())
			}
		})
	}
}

func TestRemote_Timeout(t *testing.T) {
	t.Parallel()

	p := &mockProvider{delay: time.Second}
	r := NewRemote(p, RemoteOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	out := r.Analyze(context.Background(), testInput())
	if out.Reason != ReasonTimeout {
		t.Fatalf("reason = %q, want %q (err=%v)", out.Reason, ReasonTimeout, out.Err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout took %v, want well under provider delay", elapsed)
	}
}

func TestRemote_RateLimited(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	r := NewRemote(p, RemoteOptions{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	if out := r.Analyze(context.Background(), testInput()); !out.OK() {
		t.Fatalf("first call failed: %v", out.Err)
	}
	out := r.Analyze(context.Background(), testInput())
	if out.Reason != ReasonRateLimited {
		t.Fatalf("reason = %q, want %q", out.Reason, ReasonRateLimited)
	}
	if p.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.callCount())
	}
}

func TestRemote_CreatesSpan(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	p := &mockProvider{responses: []*LLMResponse{textResponse("garbage")}}
	NewRemote(p, RemoteOptions{}).Analyze(context.Background(), testInput())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "analysis.remote" {
		t.Errorf("span name = %q, want analysis.remote", s.Name)
	}
	attrs := make(map[string]any)
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.AsInterface()
	}
	if v := attrs["sentinel.analysis.failure_reason"]; v != string(ReasonParse) {
		t.Errorf("failure_reason = %v, want %q", v, ReasonParse)
	}
	if v := attrs["sentinel.event.type"]; v != "malware_detection" {
		t.Errorf("event.type = %v, want malware_detection", v)
	}
}
