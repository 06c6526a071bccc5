package analysis

import "strings"

// Severity is the rank assigned to an analyzed event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMed      Severity = "MED"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every valid rank, lowest first.
var Severities = []Severity{SeverityLow, SeverityMed, SeverityHigh, SeverityCritical}

// Valid reports whether s is one of the four ranks.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMed, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity normalizes case and surrounding whitespace and reports whether
// the result is a valid rank.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// Input is everything a strategy may look at. Terms is read-only.
type Input struct {
	EventType   string
	Description string
	Metadata    map[string]any
	Terms       []string
}

// Result is the analysis attached to an event.
type Result struct {
	Summary         string   `json:"summary"`
	Severity        Severity `json:"severity"`
	SuggestedAction string   `json:"suggestedAction"`
}
