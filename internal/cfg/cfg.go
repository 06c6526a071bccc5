package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"time"
)

// Config holds sentinel's application settings. Listener, logging, tracing and
// profiling settings live in their go-core packages.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	ClaudeAPIKey          string
	ClaudeModel           string
	ClaudeTimeoutSeconds  int
	ClaudeMaxTokens       int
	DatabaseURL           string
	APIToken              string
	MaxConcurrentAnalyses int
	LLMRateLimit          float64
	LLMRateBurst          int
	MaxSimulateEvents     int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider (empty = keyword fallback analysis only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.IntVar(&c.ClaudeTimeoutSeconds, "claude-timeout-seconds", 30, "per-call deadline for remote analysis (1..600)")
	fs.IntVar(&c.ClaudeMaxTokens, "claude-max-tokens", 1024, "max output tokens per remote analysis (1..32768)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api routes (empty = no auth)")
	fs.IntVar(&c.MaxConcurrentAnalyses, "max-concurrent-analyses", 16, "analysis tasks allowed to run at once (1..1024)")
	fs.Float64Var(&c.LLMRateLimit, "llm-rate-limit", 0, "remote analysis calls per second, excess calls use the fallback (0 = unlimited)")
	fs.IntVar(&c.LLMRateBurst, "llm-rate-burst", 1, "burst size for llm-rate-limit (>= 1)")
	fs.IntVar(&c.MaxSimulateEvents, "max-simulate-events", 50, "max events per simulate request (1..1000)")
}

// RemoteEnabled reports whether remote analysis is configured.
func (c *Config) RemoteEnabled() bool {
	return c.ClaudeAPIKey != ""
}

// ClaudeTimeout returns the remote analysis deadline.
func (c *Config) ClaudeTimeout() time.Duration {
	return time.Duration(c.ClaudeTimeoutSeconds) * time.Second
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude settings only matter when a key is configured
	if c.RemoteEnabled() && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}
	if c.ClaudeTimeoutSeconds <= 0 || c.ClaudeTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_TIMEOUT_SECONDS %d (must be 1..600)", c.ClaudeTimeoutSeconds))
	}
	if c.ClaudeMaxTokens <= 0 || c.ClaudeMaxTokens > 32768 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MAX_TOKENS %d (must be 1..32768)", c.ClaudeMaxTokens))
	}

	if c.MaxConcurrentAnalyses <= 0 || c.MaxConcurrentAnalyses > 1024 {
		errs = append(errs, fmt.Errorf("invalid MAX_CONCURRENT_ANALYSES %d (must be 1..1024)", c.MaxConcurrentAnalyses))
	}
	if math.IsNaN(c.LLMRateLimit) || math.IsInf(c.LLMRateLimit, 0) || c.LLMRateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_RATE_LIMIT %v (must be >= 0)", c.LLMRateLimit))
	}
	if c.LLMRateBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid LLM_RATE_BURST %d (must be >= 1)", c.LLMRateBurst))
	}
	if c.MaxSimulateEvents <= 0 || c.MaxSimulateEvents > 1000 {
		errs = append(errs, fmt.Errorf("invalid MAX_SIMULATE_EVENTS %d (must be 1..1000)", c.MaxSimulateEvents))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
