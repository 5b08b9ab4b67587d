package models

// Severity classifies a status reading for display purposes.
type Severity int

const (
	// SeverityOK means plenty of quota remains.
	SeverityOK Severity = iota
	// SeverityWarning means quota is running low.
	SeverityWarning
	// SeverityExhausted means the matched model has no quota left.
	SeverityExhausted
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityExhausted:
		return "exhausted"
	default:
		return "ok"
	}
}

// Status is a short display reading keyed by a stable slot identifier so
// consumers can update a fixed widget in place.
type Status struct {
	Slot     string
	Text     string
	Severity Severity
}
