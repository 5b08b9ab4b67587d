// Package snapshot normalizes raw GetUserStatus responses into QuotaSnapshot
// values. The upstream payload is a third-party contract with optional and
// undocumented fields, so every access is defensive with an explicit default;
// only top-level malformed JSON is an error.
package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/j-veylop/cascade-quota-engine/internal/models"
)

// ParseError reports a response that is not valid JSON at all. It is kept
// distinct from API errors because it indicates a contract change upstream.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed quota response: %s", e.Reason)
}

// Parse converts a raw API response into a QuotaSnapshot. The snapshot
// timestamp is set at parse time, not taken from the server.
func Parse(raw []byte) (*models.QuotaSnapshot, error) {
	return parseAt(raw, time.Now())
}

func parseAt(raw []byte, now time.Time) (*models.QuotaSnapshot, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Reason: "empty body"}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &ParseError{Reason: "invalid JSON"}
	}

	userStatus := gjson.GetBytes(raw, "userStatus")

	snap := &models.QuotaSnapshot{Timestamp: now}
	snap.PromptCredits = parsePromptCredits(userStatus.Get("planStatus"))

	configs := userStatus.Get("cascadeModelConfigData.clientModelConfigs")
	configs.ForEach(func(_, entry gjson.Result) bool {
		if m, ok := parseModelEntry(entry, now); ok {
			snap.Models = append(snap.Models, m)
		}
		return true
	})

	return snap, nil
}

// parsePromptCredits returns credit info only when both a monthly cap and an
// available figure are present and the cap is positive.
func parsePromptCredits(plan gjson.Result) *models.PromptCreditsInfo {
	monthly := plan.Get("monthlyPromptCredits")
	available := plan.Get("availablePromptCredits")
	if !monthly.Exists() || !available.Exists() {
		return nil
	}
	monthlyCap := monthly.Float()
	if monthlyCap <= 0 {
		return nil
	}

	avail := available.Float()
	return &models.PromptCreditsInfo{
		Available:           avail,
		Monthly:             monthlyCap,
		UsedPercentage:      (monthlyCap - avail) / monthlyCap * 100,
		RemainingPercentage: avail / monthlyCap * 100,
	}
}

// parseModelEntry converts one clientModelConfigs element. Entries without
// any quotaInfo carry no usage signal and are dropped rather than shown as
// full quota.
func parseModelEntry(entry gjson.Result, now time.Time) (models.ModelQuotaInfo, bool) {
	quotaInfo := entry.Get("quotaInfo")
	if !quotaInfo.Exists() {
		return models.ModelQuotaInfo{}, false
	}

	fraction := remainingFraction(quotaInfo.Get("remainingFraction"))

	m := models.ModelQuotaInfo{
		Label:               entry.Get("label").String(),
		ModelID:             entry.Get("modelId").String(),
		RemainingFraction:   fraction,
		RemainingPercentage: fraction * 100,
		IsExhausted:         fraction == 0,
	}
	if m.ModelID == "" {
		m.ModelID = entry.Get("model").String()
	}

	if resetStr := quotaInfo.Get("resetTime").String(); resetStr != "" {
		if reset, err := time.Parse(time.RFC3339, resetStr); err == nil {
			m.ResetTime = reset
			m.TimeUntilReset = FormatTimeUntil(reset, now)
		}
	}

	return m, true
}

// remainingFraction reads the fraction as a number or numeric string. An
// absent or unreadable value means the model has never been used, which the
// upstream reports by omitting the field entirely.
func remainingFraction(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		if f, err := strconv.ParseFloat(r.Str, 64); err == nil {
			return f
		}
	}
	return 1.0
}

// FormatTimeUntil renders the time remaining until reset: "now" when the
// reset has passed, minutes under an hour, hours and minutes under a day,
// days and hours beyond.
func FormatTimeUntil(reset, now time.Time) string {
	diff := reset.Sub(now)
	if diff <= 0 {
		return "now"
	}

	minutes := int(math.Round(diff.Minutes()))
	if minutes < 1 {
		return "now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	}

	days := hours / 24
	return fmt.Sprintf("%dd %dh", days, hours%24)
}
