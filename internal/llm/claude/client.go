// Package claude implements analysis.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/sentinel/internal/analysis"
)

// Client implements the analysis.Provider interface for the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude client for the given API key and model. The SDK's own
// retries are disabled; a failed call is demoted to the fallback strategy by
// the caller instead. Extra options (e.g. option.WithBaseURL) are appended.
func New(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &Client{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Send sends a request to the Claude API and returns the response.
func (c *Client) Send(ctx context.Context, req *analysis.LLMRequest) (*analysis.LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude: messages.new: %w", err)
	}
	return fromSDKResponse(msg), nil
}

func toSDKMessages(msgs []analysis.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			if b.Type != "text" {
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(b.Text))
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(m.Role),
			Content: blocks,
		})
	}
	return out
}

func fromSDKResponse(msg *anthropic.Message) *analysis.LLMResponse {
	resp := &analysis.LLMResponse{
		StopReason: analysis.StopReason(msg.StopReason),
		Usage: analysis.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Model: string(msg.Model),
	}
	for _, b := range msg.Content {
		if b.Type != "text" {
			continue
		}
		resp.Content = append(resp.Content, analysis.ContentBlock{Type: "text", Text: b.Text})
	}
	return resp
}
