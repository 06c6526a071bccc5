package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/sentinel/internal/analysis"
)

// Watchlist is a named monitoring rule with its trigger terms.
type Watchlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Terms       []string  `json:"terms"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (w *Watchlist) Clone() *Watchlist {
	cp := *w
	cp.Terms = append([]string(nil), w.Terms...)
	if w.Description != nil {
		d := *w.Description
		cp.Description = &d
	}
	return &cp
}

// Event is a security occurrence raised against a watchlist. The four analysis
// fields are either all nil (unprocessed) or all set (processed).
type Event struct {
	ID              string             `json:"id"`
	Type            string             `json:"eventType"`
	Description     string             `json:"description"`
	Metadata        Metadata           `json:"metadata"`
	WatchlistID     string             `json:"watchlistId"`
	Summary         *string            `json:"summary"`
	Severity        *analysis.Severity `json:"severity"`
	SuggestedAction *string            `json:"suggestedAction"`
	ProcessedAt     *time.Time         `json:"processedAt"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// Processed reports whether the analysis fields have been written.
func (e *Event) Processed() bool {
	return e.ProcessedAt != nil
}

// Analysis returns the stored analysis, or nil when unprocessed.
func (e *Event) Analysis() *analysis.Result {
	if !e.Processed() || e.Summary == nil || e.Severity == nil || e.SuggestedAction == nil {
		return nil
	}
	return &analysis.Result{
		Summary:         *e.Summary,
		Severity:        *e.Severity,
		SuggestedAction: *e.SuggestedAction,
	}
}

// SetAnalysis sets all four analysis fields at once.
func (e *Event) SetAnalysis(res *analysis.Result, at time.Time) {
	summary, sev, action := res.Summary, res.Severity, res.SuggestedAction
	e.Summary = &summary
	e.Severity = &sev
	e.SuggestedAction = &action
	e.ProcessedAt = &at
	e.UpdatedAt = at
}

// Clone returns a deep copy, safe to hand to other goroutines.
func (e *Event) Clone() *Event {
	cp := *e
	cp.Metadata = e.Metadata.Clone()
	if e.Summary != nil {
		v := *e.Summary
		cp.Summary = &v
	}
	if e.Severity != nil {
		v := *e.Severity
		cp.Severity = &v
	}
	if e.SuggestedAction != nil {
		v := *e.SuggestedAction
		cp.SuggestedAction = &v
	}
	if e.ProcessedAt != nil {
		v := *e.ProcessedAt
		cp.ProcessedAt = &v
	}
	return &cp
}

// Metadata is an event's free-form attributes. Values are restricted to what
// encoding/json produces: string, float64, bool, nil, map[string]any and []any.
type Metadata map[string]any

// NormalizeMetadata converts m into the closed JSON value set by round-tripping
// it through encoding/json. A nil map becomes an empty one.
func NormalizeMetadata(m map[string]any) (Metadata, error) {
	if len(m) == 0 {
		return Metadata{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("metadata is not JSON-serializable: %w", err)
	}
	var out Metadata
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, vv := range t {
			cp[k] = cloneValue(vv)
		}
		return cp
	case Metadata:
		return t.Clone()
	case []any:
		cp := make([]any, len(t))
		for i, vv := range t {
			cp[i] = cloneValue(vv)
		}
		return cp
	default:
		return v
	}
}
