package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	assert.Equal(t, 1, Rank("high"))
	assert.Equal(t, 2, Rank("medium"))
	assert.Equal(t, 3, Rank("low"))
	assert.Equal(t, 1, Rank("HIGH"))
	assert.Equal(t, 2, Rank("Medium"))

	// Unknown and missing labels rank last.
	assert.Equal(t, 99, Rank(""))
	assert.Equal(t, 99, Rank("urgent"))
}

func TestKeywordAssessor(t *testing.T) {
	a := NewKeywordAssessor()
	ctx := context.Background()

	cases := []struct {
		issue string
		want  string
	}{
		{"sudden chest pain after exercise", PriorityHigh},
		{"Severe bleeding from a cut", PriorityHigh},
		{"running a fever since yesterday", PriorityMedium},
		{"mild knee pain when walking", PriorityMedium},
		{"annual checkup", PriorityLow},
		{"", PriorityLow},
	}
	for _, tc := range cases {
		got, err := a.Urgency(ctx, "session", tc.issue)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.issue)
	}
}
