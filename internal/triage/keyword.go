package triage

import (
	"context"
	"strings"
)

var (
	highKeywords = []string{
		"chest pain", "bleeding", "breath", "unconscious", "stroke",
		"seizure", "severe", "emergency", "overdose", "fracture",
	}
	mediumKeywords = []string{
		"fever", "infection", "pain", "vomit", "migraine",
		"dizziness", "rash", "injury", "swelling",
	}
)

// KeywordAssessor is a deterministic fallback classifier for deployments
// without an AI backend.
type KeywordAssessor struct{}

func NewKeywordAssessor() *KeywordAssessor {
	return &KeywordAssessor{}
}

func (a *KeywordAssessor) Urgency(ctx context.Context, sessionID, issue string) (string, error) {
	lowered := strings.ToLower(issue)
	for _, kw := range highKeywords {
		if strings.Contains(lowered, kw) {
			return PriorityHigh, nil
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(lowered, kw) {
			return PriorityMedium, nil
		}
	}
	return PriorityLow, nil
}
