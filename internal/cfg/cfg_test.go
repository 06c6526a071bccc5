package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with every field set to a valid value.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeModel:           "claude-sonnet-4-20250514",
		ClaudeTimeoutSeconds:  30,
		ClaudeMaxTokens:       1024,
		MaxConcurrentAnalyses: 16,
		LLMRateBurst:          1,
		MaxSimulateEvents:     50,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if c.RemoteEnabled() {
		t.Error("remote analysis should be disabled without an API key")
	}
	if c.ClaudeTimeout() != 30*time.Second {
		t.Errorf("ClaudeTimeout = %v, want 30s", c.ClaudeTimeout())
	}
	if c.MaxConcurrentAnalyses != 16 || c.MaxSimulateEvents != 50 || c.LLMRateLimit != 0 || c.LLMRateBurst != 1 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q", c.ClaudeModel)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-http-port", "9090",
		"-claude-api-key", "sk-override",
		"-claude-timeout-seconds", "5",
		"-database-url", "postgres://localhost/sentinel",
		"-api-token", "tok",
		"-max-concurrent-analyses", "4",
		"-llm-rate-limit", "2.5",
		"-llm-rate-burst", "3",
		"-max-simulate-events", "10",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if !c.RemoteEnabled() || c.ClaudeTimeout() != 5*time.Second {
		t.Errorf("claude settings not applied: %+v", c)
	}
	if c.APIPort != 9090 || c.DatabaseURL == "" || c.APIToken != "tok" {
		t.Errorf("server settings not applied: %+v", c)
	}
	if c.MaxConcurrentAnalyses != 4 || c.LLMRateLimit != 2.5 || c.LLMRateBurst != 3 || c.MaxSimulateEvents != 10 {
		t.Errorf("pipeline settings not applied: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mut       func(*Config)
		wantErr   bool
		errSubstr []string
	}{
		{"defaults are valid", func(*Config) {}, false, nil},
		{"remote with model", func(c *Config) { c.ClaudeAPIKey = "k" }, false, nil},
		{"no key, no model is fine", func(c *Config) { c.ClaudeModel = "" }, false, nil},
		{"key without model", func(c *Config) { c.ClaudeAPIKey = "k"; c.ClaudeModel = "" }, true, []string{"CLAUDE_MODEL"}},
		{"drain zero", func(c *Config) { c.DrainSeconds = 0 }, true, []string{"DRAIN_SECONDS"}},
		{"drain above max", func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 }, true, []string{"DRAIN_SECONDS"}},
		{"budget above max", func(c *Config) { c.ShutdownBudgetSeconds = 301 }, true, []string{"SHUTDOWN_BUDGET_SECONDS"}},
		{"budget equals drain", func(c *Config) { c.ShutdownBudgetSeconds = 60 }, true, []string{"must be greater than"}},
		{"budget is drain plus one", func(c *Config) { c.ShutdownBudgetSeconds = 61 }, false, nil},
		{"port zero", func(c *Config) { c.APIPort = 0 }, true, []string{"HTTP_PORT"}},
		{"port above max", func(c *Config) { c.APIPort = 65536 }, true, []string{"HTTP_PORT"}},
		{"timeout zero", func(c *Config) { c.ClaudeTimeoutSeconds = 0 }, true, []string{"CLAUDE_TIMEOUT_SECONDS"}},
		{"timeout at max", func(c *Config) { c.ClaudeTimeoutSeconds = 600 }, false, nil},
		{"max tokens zero", func(c *Config) { c.ClaudeMaxTokens = 0 }, true, []string{"CLAUDE_MAX_TOKENS"}},
		{"concurrency zero", func(c *Config) { c.MaxConcurrentAnalyses = 0 }, true, []string{"MAX_CONCURRENT_ANALYSES"}},
		{"concurrency above max", func(c *Config) { c.MaxConcurrentAnalyses = 1025 }, true, []string{"MAX_CONCURRENT_ANALYSES"}},
		{"negative rate", func(c *Config) { c.LLMRateLimit = -1 }, true, []string{"LLM_RATE_LIMIT"}},
		{"NaN rate", func(c *Config) { c.LLMRateLimit = math.NaN() }, true, []string{"LLM_RATE_LIMIT"}},
		{"infinite rate", func(c *Config) { c.LLMRateLimit = math.Inf(1) }, true, []string{"LLM_RATE_LIMIT"}},
		{"burst zero", func(c *Config) { c.LLMRateBurst = 0 }, true, []string{"LLM_RATE_BURST"}},
		{"simulate zero", func(c *Config) { c.MaxSimulateEvents = 0 }, true, []string{"MAX_SIMULATE_EVENTS"}},
		{
			"errors accumulate",
			func(c *Config) { *c = Config{} },
			true,
			[]string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "CLAUDE_TIMEOUT_SECONDS", "MAX_CONCURRENT_ANALYSES", "LLM_RATE_BURST"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validBase()
			tt.mut(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				for _, sub := range tt.errSubstr {
					if !strings.Contains(err.Error(), sub) {
						t.Errorf("error %q does not contain %q", err.Error(), sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	f.Add(60, 90, 8080, "", "m", 30, 16, 0.0, 1)
	f.Add(1, 2, 1, "k", "m", 1, 1, 1.5, 1)
	f.Add(0, 0, 0, "k", "", 0, 0, -1.0, 0)
	f.Add(math.MinInt32, math.MaxInt32, 65536, "", "", 601, 1025, 1e9, math.MaxInt32)

	f.Fuzz(func(t *testing.T, drain, budget, port int, key, model string, timeout, conc int, rate float64, burst int) {
		c := validBase()
		c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = drain, budget, port
		c.ClaudeAPIKey, c.ClaudeModel = key, model
		c.ClaudeTimeoutSeconds, c.MaxConcurrentAnalyses = timeout, conc
		c.LLMRateLimit, c.LLMRateBurst = rate, burst
		err := c.Validate()

		allValid := drain >= 1 && drain <= 300 &&
			budget >= 1 && budget <= 300 && budget > drain &&
			port >= 1 && port <= 65535 &&
			(key == "" || model != "") &&
			timeout >= 1 && timeout <= 600 &&
			conc >= 1 && conc <= 1024 &&
			rate >= 0 && !math.IsInf(rate, 0) &&
			burst >= 1

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
