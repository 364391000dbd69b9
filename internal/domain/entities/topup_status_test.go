package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopupStatus_IsValid(t *testing.T) {
	assert.True(t, TopupStatusPending.IsValid())
	assert.True(t, TopupStatusSuccess.IsValid())
	assert.True(t, TopupStatusFailed.IsValid())
	assert.True(t, TopupStatusExpired.IsValid())
	assert.False(t, TopupStatus("refunded").IsValid())
	assert.False(t, TopupStatus("").IsValid())
}

func TestTopupStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     TopupStatus
		to       TopupStatus
		expected bool
	}{
		{TopupStatusPending, TopupStatusSuccess, true},
		{TopupStatusPending, TopupStatusFailed, true},
		{TopupStatusPending, TopupStatusExpired, true},
		{TopupStatusPending, TopupStatusPending, false},
		{TopupStatusSuccess, TopupStatusFailed, false},
		{TopupStatusSuccess, TopupStatusSuccess, false},
		{TopupStatusFailed, TopupStatusSuccess, false},
		{TopupStatusExpired, TopupStatusSuccess, false},
		{TopupStatus("bogus"), TopupStatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTopupStatus_IsTerminal(t *testing.T) {
	assert.False(t, TopupStatusPending.IsTerminal())
	assert.True(t, TopupStatusSuccess.IsTerminal())
	assert.True(t, TopupStatusFailed.IsTerminal())
	assert.True(t, TopupStatusExpired.IsTerminal())
}

func TestTopupStatus_ValidateTransition(t *testing.T) {
	assert.NoError(t, TopupStatusPending.ValidateTransition(TopupStatusSuccess))

	err := TopupStatusSuccess.ValidateTransition(TopupStatusFailed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status transition")

	err = TopupStatusPending.ValidateTransition(TopupStatus("bogus"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid topup status")
}
