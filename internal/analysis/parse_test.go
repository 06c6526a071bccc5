package analysis

import (
	"errors"
	"testing"
)

func TestParseResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    *Result
		wantErr bool
		missing string
	}{
		{
			name: "plain object",
			text: `{"summary":"s","severity":"HIGH","suggestedAction":"a"}`,
			want: &Result{Summary: "s", Severity: SeverityHigh, SuggestedAction: "a"},
		},
		{
			name: "json fence",
			text: "```json\n{\"summary\":\"s\",\"severity\":\"LOW\",\"suggestedAction\":\"a\"}\n```",
			want: &Result{Summary: "s", Severity: SeverityLow, SuggestedAction: "a"},
		},
		{
			name: "bare fence",
			text: "```\n{\"summary\":\"s\",\"severity\":\"critical\",\"suggestedAction\":\"a\"}\n```",
			want: &Result{Summary: "s", Severity: SeverityCritical, SuggestedAction: "a"},
		},
		{
			name: "single line fence",
			text: "```{\"summary\":\"s\",\"severity\":\"MED\",\"suggestedAction\":\"a\"}```",
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{
			name: "prose around object",
			text: "Here you go: {\"summary\":\"s\",\"severity\":\"LOW\",\"suggestedAction\":\"a\"} hope it helps",
			want: &Result{Summary: "s", Severity: SeverityLow, SuggestedAction: "a"},
		},
		{
			name: "out of domain severity coerced",
			text: `{"summary":"s","severity":"SEVERE","suggestedAction":"a"}`,
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{
			name: "empty severity coerced",
			text: `{"summary":"s","severity":"","suggestedAction":"a"}`,
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{
			name: "numeric severity coerced",
			text: `{"summary":"s","severity":3,"suggestedAction":"a"}`,
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{
			name: "boolean severity coerced",
			text: `{"summary":"s","severity":true,"suggestedAction":"a"}`,
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{
			name: "object severity coerced",
			text: `{"summary":"s","severity":{"level":"HIGH"},"suggestedAction":"a"}`,
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{
			name: "array severity in prose coerced",
			text: "result: {\"summary\":\"s\",\"severity\":[\"HIGH\"],\"suggestedAction\":\"a\"}",
			want: &Result{Summary: "s", Severity: SeverityMed, SuggestedAction: "a"},
		},
		{name: "null severity", text: `{"summary":"s","severity":null,"suggestedAction":"a"}`, wantErr: true, missing: "severity"},
		{name: "missing summary", text: `{"severity":"LOW","suggestedAction":"a"}`, wantErr: true, missing: "summary"},
		{name: "missing severity", text: `{"summary":"s","suggestedAction":"a"}`, wantErr: true, missing: "severity"},
		{name: "missing action", text: `{"summary":"s","severity":"LOW"}`, wantErr: true, missing: "suggestedAction"},
		{name: "blank summary", text: `{"summary":"  ","severity":"LOW","suggestedAction":"a"}`, wantErr: true, missing: "summary"},
		{name: "not json", text: "I think it is bad", wantErr: true},
		{name: "broken json", text: `{"summary": "s",`, wantErr: true},
		{name: "empty", text: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseResult(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				if tt.missing != "" {
					var mf *missingFieldError
					if !errors.As(err, &mf) {
						t.Fatalf("error = %v, want missingFieldError", err)
					}
					if mf.field != tt.missing {
						t.Errorf("missing field = %q, want %q", mf.field, tt.missing)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResult: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("parseResult = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"{}", "{}"},
		{"  {}  ", "{}"},
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"```{}```", "{}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
