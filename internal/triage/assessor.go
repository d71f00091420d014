// Package triage classifies free-text appointment issues into urgency labels.
package triage

import (
	"context"
	"strings"
)

// Recognized priority labels, case-insensitive on the wire.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Assessor maps a free-text issue description to a priority label. The
// session id correlates repeated assessments for the same appointment.
type Assessor interface {
	Urgency(ctx context.Context, sessionID, issue string) (string, error)
}

// Rank orders priority labels for cancellation replay: high first,
// unrecognized or missing labels last.
func Rank(priority string) int {
	switch strings.ToLower(priority) {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 99
	}
}
