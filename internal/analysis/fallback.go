package analysis

import (
	"context"
	"fmt"
	"strings"
)

// keyword tiers, checked highest severity first.
var tiers = []struct {
	severity Severity
	keywords []string
	action   string
}{
	{SeverityCritical, []string{"critical", "breach", "attack"},
		"Escalate immediately: isolate affected systems and start incident response."},
	{SeverityHigh, []string{"suspicious", "malware", "threat"},
		"Investigate promptly and contain the affected hosts or accounts."},
	{SeverityMed, []string{"unusual", "anomaly"},
		"Review the activity and confirm whether it is expected."},
}

const lowAction = "No immediate action required. Continue monitoring."

// Fallback is the deterministic keyword classifier. It never fails and never blocks.
type Fallback struct{}

// Analyze classifies the event. The context is unused.
func (Fallback) Analyze(_ context.Context, in *Input) *Result {
	return Classify(in)
}

// Classify is the keyword classifier as a plain function. It is total: a nil or
// empty input yields a LOW result.
func Classify(in *Input) *Result {
	if in == nil {
		in = &Input{}
	}
	text := strings.ToLower(in.EventType + " " + in.Description)

	res := &Result{Severity: SeverityLow, SuggestedAction: lowAction}
	for _, tier := range tiers {
		if containsAny(text, tier.keywords) {
			res.Severity = tier.severity
			res.SuggestedAction = tier.action
			break
		}
	}

	res.Summary = summarize(in.EventType, MatchTerms(text, in.Terms))
	return res
}

// MatchTerms returns the watchlist terms that occur in text, case-insensitively,
// in watchlist order without duplicates.
func MatchTerms(text string, terms []string) []string {
	lower := strings.ToLower(text)
	var matched []string
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if strings.Contains(lower, t) {
			matched = append(matched, strings.TrimSpace(term))
		}
	}
	return matched
}

func summarize(eventType string, matched []string) string {
	name := strings.TrimSpace(eventType)
	if name == "" {
		name = "unknown"
	}
	s := fmt.Sprintf("Security event of type %q was recorded.", name)
	if len(matched) > 0 {
		s += fmt.Sprintf(" It matches watchlist terms: %s.", strings.Join(matched, ", "))
	}
	return s
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
