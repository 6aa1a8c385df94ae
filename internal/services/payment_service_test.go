package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIdentityMatches(t *testing.T) {
	// Metadata read back from the JSON column carries float64; fresh
	// request input carries uint. Both shapes must compare equal.
	stored := func(split, participant float64) map[string]interface{} {
		return map[string]interface{}{"bill_split_id": split, "participant_id": participant}
	}
	requested := func(split, participant uint) map[string]interface{} {
		return map[string]interface{}{"bill_split_id": split, "participant_id": participant}
	}

	tests := []struct {
		name      string
		existing  map[string]interface{}
		requested map[string]interface{}
		want      bool
	}{
		{"same participant across type shapes", stored(3, 1), requested(3, 1), true},
		{"different participant same split", stored(3, 1), requested(3, 2), false},
		{"different split same participant id", stored(3, 1), requested(4, 1), false},
		{"plain order payment on both sides", nil, nil, true},
		{"split session offered to plain order payer", stored(3, 1), nil, false},
		{"plain session offered to split payer", nil, requested(3, 2), false},
		{"empty metadata equals nil", map[string]interface{}{}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionIdentityMatches(tt.existing, tt.requested))
		})
	}
}

func TestSessionIdentityMatchesEqualShares(t *testing.T) {
	// Two participants with identical share amounts paying the same order
	// through the same redirect gateway: the open session of the first
	// must not be handed to the second.
	first := map[string]interface{}{"bill_split_id": float64(7), "participant_id": float64(1)}
	second := map[string]interface{}{"bill_split_id": uint(7), "participant_id": uint(2)}

	assert.False(t, sessionIdentityMatches(first, second))
	assert.True(t, sessionIdentityMatches(first, map[string]interface{}{
		"bill_split_id": uint(7), "participant_id": uint(1),
	}))
}
