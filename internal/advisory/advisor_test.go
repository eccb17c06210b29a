package advisory

import (
	"encoding/json"
	"testing"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain object",
			raw:  `{"annual_growth_pct": 3.5}`,
			want: `{"annual_growth_pct": 3.5}`,
		},
		{
			name: "fenced object",
			raw:  "```json\n{\"annual_growth_pct\": 3.5}\n```",
			want: `{"annual_growth_pct": 3.5}`,
		},
		{
			name: "fence without language",
			raw:  "```\n[{\"amount\": 12.5}]\n```",
			want: `[{"amount": 12.5}]`,
		},
		{
			name: "chatty preamble around array",
			raw:  "Here is the result:\n[{\"amount\": 1}]\nHope that helps!",
			want: `[{"amount": 1}]`,
		},
		{
			name: "array of objects keeps array brackets",
			raw:  `[{"a": 1}, {"a": 2}]`,
			want: `[{"a": 1}, {"a": 2}]`,
		},
		{
			name: "whitespace only trimming",
			raw:  "  {\"x\": 1}  \n",
			want: `{"x": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReceiptLineDecode(t *testing.T) {
	raw := "```json\n" +
		`[{"date": "2025-06-01", "description": "Milk", "amount": 2.5, "currency": "NOK", "category": "Groceries"}]` +
		"\n```"

	var lines []ReceiptLine
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &lines); err != nil {
		t.Fatalf("unmarshal cleaned receipt JSON: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Description != "Milk" {
		t.Errorf("description = %q, want Milk", lines[0].Description)
	}
	if lines[0].Amount.String() != "2.5" {
		t.Errorf("amount = %s, want 2.5", lines[0].Amount)
	}
}

func TestGrowthAdviceDecode(t *testing.T) {
	raw := `{"annual_growth_pct": 3.2, "reasoning": "Stable area.", "historical_context": "Regional index 2015-2025."}`

	var advice GrowthAdvice
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &advice); err != nil {
		t.Fatalf("unmarshal advice JSON: %v", err)
	}
	if advice.AnnualGrowthPct.String() != "3.2" {
		t.Errorf("annual growth = %s, want 3.2", advice.AnnualGrowthPct)
	}
	if advice.Reasoning == "" {
		t.Error("reasoning should not be empty")
	}
}
