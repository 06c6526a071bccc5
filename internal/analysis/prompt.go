package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a security analyst. You review security events raised against user-defined watchlists.

Respond with a single JSON object and nothing else. The object must have exactly these fields:
  "summary":         one or two sentences describing what happened
  "severity":        one of "LOW", "MED", "HIGH", "CRITICAL"
  "suggestedAction": one concrete next step for the operator`

// buildPrompt embeds the event and the watchlist terms into the user message.
func buildPrompt(in *Input) string {
	meta := "{}"
	if len(in.Metadata) > 0 {
		if b, err := json.MarshalIndent(in.Metadata, "", "  "); err == nil {
			meta = string(b)
		}
	}

	terms := "(none)"
	if len(in.Terms) > 0 {
		terms = strings.Join(in.Terms, ", ")
	}

	return fmt.Sprintf(`Analyze this security event.

Event type: %s
Description: %s

Metadata:
%s

Watchlist terms: %s

Return the JSON object described in your instructions.`,
		in.EventType,
		in.Description,
		meta,
		terms,
	)
}
