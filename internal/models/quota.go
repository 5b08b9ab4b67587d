// Package models defines data structures and domain types.
package models

import (
	"strings"
	"time"
)

// ProcessInfo describes a discovered local service instance. Port may be 0
// until a listening port has been confirmed by probing.
type ProcessInfo struct {
	PID    int
	Port   int
	Secret string
}

// ModelDescriptor identifies the currently active model as reported by the host.
type ModelDescriptor struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// PromptCreditsInfo holds the aggregate monthly credit balance.
type PromptCreditsInfo struct {
	Available           float64 `json:"available"`
	Monthly             float64 `json:"monthly"`
	UsedPercentage      float64 `json:"usedPercentage"`
	RemainingPercentage float64 `json:"remainingPercentage"`
}

// ModelQuotaInfo holds the remaining quota for a single model.
type ModelQuotaInfo struct {
	ResetTime           time.Time `json:"resetTime"`
	Label               string    `json:"label"`
	ModelID             string    `json:"modelId"`
	TimeUntilReset      string    `json:"timeUntilReset,omitempty"`
	RemainingFraction   float64   `json:"remainingFraction"`
	RemainingPercentage float64   `json:"remainingPercentage"`
	IsExhausted         bool      `json:"isExhausted"`
}

// QuotaSnapshot is a point-in-time usage reading. Snapshots are immutable once
// constructed; the engine replaces its cached snapshot wholesale on refresh.
type QuotaSnapshot struct {
	Timestamp     time.Time          `json:"timestamp"`
	PromptCredits *PromptCreditsInfo `json:"promptCredits,omitempty"`
	Models        []ModelQuotaInfo   `json:"models"`
}

// ModelFor returns the snapshot entry matching the given descriptor, using
// case-insensitive bidirectional substring containment on id and label.
func (s *QuotaSnapshot) ModelFor(desc ModelDescriptor) (ModelQuotaInfo, bool) {
	if s == nil || desc.ID == "" {
		return ModelQuotaInfo{}, false
	}
	for _, m := range s.Models {
		if matchLoose(desc.ID, m.ModelID) || matchLoose(desc.ID, m.Label) {
			return m, true
		}
	}
	return ModelQuotaInfo{}, false
}

func matchLoose(current, candidate string) bool {
	if current == "" || candidate == "" {
		return false
	}
	a := strings.ToLower(current)
	b := strings.ToLower(candidate)
	return strings.Contains(a, b) || strings.Contains(b, a)
}
