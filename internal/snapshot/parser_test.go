package snapshot

import (
	"fmt"
	"testing"
	"time"
)

const sampleResponse = `{
	"userStatus": {
		"planStatus": {
			"monthlyPromptCredits": 100000,
			"availablePromptCredits": 50000
		},
		"cascadeModelConfigData": {
			"clientModelConfigs": [
				{
					"label": "Claude 3.5 Sonnet",
					"modelId": "claude-3-5-sonnet",
					"quotaInfo": {
						"remainingFraction": 0.42,
						"resetTime": "2026-01-02T15:00:00Z"
					}
				},
				{
					"label": "GPT-5",
					"modelId": "gpt-5",
					"quotaInfo": {}
				},
				{
					"label": "Premium",
					"modelId": "premium-large",
					"quotaInfo": {
						"remainingFraction": 0
					}
				},
				{
					"label": "No quota data",
					"modelId": "mystery-model"
				}
			]
		}
	}
}`

func TestParse(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	snap, err := parseAt([]byte(sampleResponse), now)
	if err != nil {
		t.Fatalf("parseAt() error = %v", err)
	}

	if !snap.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", snap.Timestamp, now)
	}

	// Entry without quotaInfo is dropped
	if len(snap.Models) != 3 {
		t.Fatalf("len(Models) = %d, want 3", len(snap.Models))
	}

	sonnet := snap.Models[0]
	if sonnet.RemainingFraction != 0.42 {
		t.Errorf("RemainingFraction = %v, want 0.42", sonnet.RemainingFraction)
	}
	if sonnet.RemainingPercentage != 42 {
		t.Errorf("RemainingPercentage = %v, want 42", sonnet.RemainingPercentage)
	}
	if sonnet.IsExhausted {
		t.Error("IsExhausted = true for fraction 0.42")
	}
	if sonnet.TimeUntilReset != "3h 0m" {
		t.Errorf("TimeUntilReset = %q, want %q", sonnet.TimeUntilReset, "3h 0m")
	}

	// Absent remainingFraction defaults to full quota
	gpt := snap.Models[1]
	if gpt.RemainingFraction != 1.0 {
		t.Errorf("absent fraction: RemainingFraction = %v, want 1.0", gpt.RemainingFraction)
	}
	if gpt.IsExhausted {
		t.Error("absent fraction: IsExhausted = true, want false")
	}

	// Zero fraction means exhausted
	premium := snap.Models[2]
	if !premium.IsExhausted {
		t.Error("zero fraction: IsExhausted = false, want true")
	}
}

func TestParsePromptCredits(t *testing.T) {
	snap, err := Parse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	pc := snap.PromptCredits
	if pc == nil {
		t.Fatal("PromptCredits = nil")
	}
	if pc.UsedPercentage != 50 {
		t.Errorf("UsedPercentage = %v, want 50", pc.UsedPercentage)
	}
	if pc.RemainingPercentage != 50 {
		t.Errorf("RemainingPercentage = %v, want 50", pc.RemainingPercentage)
	}
}

func TestParsePromptCreditsOmitted(t *testing.T) {
	tests := []struct {
		name string
		plan string
	}{
		{"zero cap", `{"monthlyPromptCredits": 0, "availablePromptCredits": 10}`},
		{"missing cap", `{"availablePromptCredits": 10}`},
		{"missing available", `{"monthlyPromptCredits": 1000}`},
		{"missing plan", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fmt.Sprintf(`{"userStatus": {"planStatus": %s}}`, tt.plan)
			snap, err := Parse([]byte(raw))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if snap.PromptCredits != nil {
				t.Errorf("PromptCredits = %+v, want nil", snap.PromptCredits)
			}
		})
	}
}

func TestParseStringFraction(t *testing.T) {
	tests := []struct {
		name     string
		fraction string
		want     float64
	}{
		{"numeric string", `"0.75"`, 0.75},
		{"number", `0.75`, 0.75},
		{"zero string", `"0"`, 0},
		{"garbage string", `"plenty"`, 1.0},
		{"null", `null`, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fmt.Sprintf(`{"userStatus": {"cascadeModelConfigData": {"clientModelConfigs": [
				{"modelId": "m", "quotaInfo": {"remainingFraction": %s}}
			]}}}`, tt.fraction)

			snap, err := Parse([]byte(raw))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(snap.Models) != 1 {
				t.Fatalf("len(Models) = %d, want 1", len(snap.Models))
			}
			if got := snap.Models[0].RemainingFraction; got != tt.want {
				t.Errorf("RemainingFraction = %v, want %v", got, tt.want)
			}
			if exhausted := snap.Models[0].IsExhausted; exhausted != (tt.want == 0) {
				t.Errorf("IsExhausted = %v, want %v", exhausted, tt.want == 0)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"userStatus":`} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Errorf("Parse(%q) error = nil, want ParseError", raw)
		} else if _, ok := err.(*ParseError); !ok {
			t.Errorf("Parse(%q) error type = %T, want *ParseError", raw, err)
		}
	}
}

func TestParseIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	first, err := parseAt([]byte(sampleResponse), now)
	if err != nil {
		t.Fatalf("parseAt() error = %v", err)
	}
	second, err := parseAt([]byte(sampleResponse), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("parseAt() error = %v", err)
	}

	if len(first.Models) != len(second.Models) {
		t.Fatalf("model counts differ: %d vs %d", len(first.Models), len(second.Models))
	}
	for i := range first.Models {
		a, b := first.Models[i], second.Models[i]
		// TimeUntilReset depends on parse time; everything else must match.
		a.TimeUntilReset, b.TimeUntilReset = "", ""
		if a != b {
			t.Errorf("model %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestFormatTimeUntil(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		reset time.Time
		want  string
	}{
		{"past", now.Add(-time.Hour), "now"},
		{"exactly now", now, "now"},
		{"seconds away", now.Add(10 * time.Second), "now"},
		{"20 minutes", now.Add(20 * time.Minute), "20m"},
		{"90 minutes", now.Add(90 * time.Minute), "1h 30m"},
		{"2h30m", now.Add(2*time.Hour + 30*time.Minute), "2h 30m"},
		{"30 hours", now.Add(30 * time.Hour), "1d 6h"},
		{"3 days", now.Add(72 * time.Hour), "3d 0h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimeUntil(tt.reset, now); got != tt.want {
				t.Errorf("FormatTimeUntil() = %q, want %q", got, tt.want)
			}
		})
	}
}
