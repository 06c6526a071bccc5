package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errEmptyResponse = errors.New("empty response")
	errNotJSON       = errors.New("response is not a JSON object")
)

// missingFieldError names the required field absent from the response.
type missingFieldError struct {
	field string
}

func (e *missingFieldError) Error() string {
	return "response missing field " + e.field
}

type rawResult struct {
	Summary         *string         `json:"summary"`
	Severity        json.RawMessage `json:"severity"`
	SuggestedAction *string         `json:"suggestedAction"`
}

// parseResult decodes the model's text into a Result. A fenced code block
// around the object is tolerated. An out-of-domain severity becomes MED.
func parseResult(text string) (*Result, error) {
	body := stripFences(text)
	if body == "" {
		return nil, errEmptyResponse
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		// tolerate prose around the object
		start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
		if start < 0 || end <= start {
			return nil, errNotJSON
		}
		if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
			return nil, errNotJSON
		}
	}

	switch {
	case raw.Summary == nil || strings.TrimSpace(*raw.Summary) == "":
		return nil, &missingFieldError{field: "summary"}
	case len(raw.Severity) == 0 || string(raw.Severity) == "null":
		return nil, &missingFieldError{field: "severity"}
	case raw.SuggestedAction == nil || strings.TrimSpace(*raw.SuggestedAction) == "":
		return nil, &missingFieldError{field: "suggestedAction"}
	}

	return &Result{
		Summary:         strings.TrimSpace(*raw.Summary),
		Severity:        coerceSeverity(raw.Severity),
		SuggestedAction: strings.TrimSpace(*raw.SuggestedAction),
	}, nil
}

// coerceSeverity maps a present severity value onto the domain. Anything that
// is not a recognised string, numbers and objects included, becomes MED.
func coerceSeverity(v json.RawMessage) Severity {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return SeverityMed
	}
	sev, ok := ParseSeverity(s)
	if !ok {
		return SeverityMed
	}
	return sev
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string, e.g. "json"
		if !strings.Contains(s[:nl], "{") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
