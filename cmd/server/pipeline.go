package main

import (
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/sentinel/internal/analysis"
	vc "github.com/linnemanlabs/sentinel/internal/cfg"
	"github.com/linnemanlabs/sentinel/internal/llm/claude"
)

// newRemote builds the remote analysis strategy, or returns nil when no Claude
// API key is configured.
func newRemote(c *vc.Config) *analysis.Remote {
	if !c.RemoteEnabled() {
		return nil
	}

	var limiter *rate.Limiter
	if c.LLMRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.LLMRateLimit), c.LLMRateBurst)
	}

	provider := claude.New(c.ClaudeAPIKey, c.ClaudeModel, c.ClaudeTimeout())
	return analysis.NewRemote(provider, analysis.RemoteOptions{
		Timeout:   c.ClaudeTimeout(),
		MaxTokens: c.ClaudeMaxTokens,
		Limiter:   limiter,
	})
}
