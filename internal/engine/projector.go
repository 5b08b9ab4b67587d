package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/j-veylop/cascade-quota-engine/internal/models"
)

// warnThreshold is the remaining fraction below which status turns warning.
const warnThreshold = 0.25

// Projector maps a cached snapshot onto the currently active model and
// derives the short display status. When nothing matches, the status is
// hidden rather than showing a figure for the wrong model.
type Projector struct {
	slot string
}

// NewProjector creates a projector publishing under the given slot id.
func NewProjector(slot string) *Projector {
	return &Projector{slot: slot}
}

// Project derives the status for the active model. The false return means
// "show nothing": no snapshot, or no entry matching the model.
func (p *Projector) Project(snap *models.QuotaSnapshot, current models.ModelDescriptor) (models.Status, bool) {
	if snap == nil {
		return models.Status{}, false
	}
	m, ok := snap.ModelFor(current)
	if !ok {
		return models.Status{}, false
	}

	severity := models.SeverityOK
	switch {
	case m.IsExhausted:
		severity = models.SeverityExhausted
	case m.RemainingFraction < warnThreshold:
		severity = models.SeverityWarning
	}

	name := m.Label
	if name == "" {
		name = m.ModelID
	}

	text := fmt.Sprintf("%s %d%%", name, int(math.Round(m.RemainingPercentage)))
	if m.IsExhausted && m.TimeUntilReset != "" {
		text = fmt.Sprintf("%s resets %s", name, m.TimeUntilReset)
	}

	return models.Status{Slot: p.slot, Text: text, Severity: severity}, true
}

// Status projects the engine's cached snapshot onto the current model.
func (e *Engine) Status() (models.Status, bool) {
	return NewProjector(e.config.StatusSlot).Project(e.Snapshot(), e.CurrentModel())
}

// Report renders a multi-line detail view of the cached snapshot for
// on-demand display. The tri-state surface maps to: a report when a snapshot
// exists, a "not configured" line when nothing resolved, and the raw failure
// message after a failed refresh.
func (e *Engine) Report() string {
	e.mu.RLock()
	snap := e.snapshot
	lastErr := e.lastErr
	e.mu.RUnlock()

	if snap == nil {
		if lastErr != nil {
			return fmt.Sprintf("Quota unavailable: %v", lastErr)
		}
		return "Quota not configured: no local server running and no credentials found"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Usage as of %s\n", snap.Timestamp.Format(time.RFC1123))

	if pc := snap.PromptCredits; pc != nil {
		fmt.Fprintf(&b, "Prompt credits: %.0f of %.0f remaining (%.0f%% used)\n",
			pc.Available, pc.Monthly, pc.UsedPercentage)
	}

	for _, m := range snap.Models {
		name := m.Label
		if name == "" {
			name = m.ModelID
		}
		fmt.Fprintf(&b, "  %-40s %3.0f%%", name, m.RemainingPercentage)
		if m.TimeUntilReset != "" {
			fmt.Fprintf(&b, "  resets %s", m.TimeUntilReset)
		}
		b.WriteByte('\n')
	}

	if lastErr != nil {
		fmt.Fprintf(&b, "Last refresh failed: %v\n", lastErr)
	}

	return strings.TrimRight(b.String(), "\n")
}
