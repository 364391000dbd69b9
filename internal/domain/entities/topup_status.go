package entities

import "fmt"

// TopupStatus represents the status of a topup order
type TopupStatus string

const (
	TopupStatusPending TopupStatus = "pending"
	TopupStatusSuccess TopupStatus = "success"
	TopupStatusFailed  TopupStatus = "failed"
	TopupStatusExpired TopupStatus = "expired"
)

// ValidTopupStatuses contains all valid topup statuses
var ValidTopupStatuses = map[TopupStatus]bool{
	TopupStatusPending: true,
	TopupStatusSuccess: true,
	TopupStatusFailed:  true,
	TopupStatusExpired: true,
}

// ValidTopupTransitions defines allowed status transitions.
// pending is the only non-terminal state; success must be entered at
// most once per order regardless of gateway redelivery.
var ValidTopupTransitions = map[TopupStatus][]TopupStatus{
	TopupStatusPending: {TopupStatusSuccess, TopupStatusFailed, TopupStatusExpired},
	TopupStatusSuccess: {},
	TopupStatusFailed:  {},
	TopupStatusExpired: {},
}

// IsValid checks if the status is a valid topup status
func (s TopupStatus) IsValid() bool {
	return ValidTopupStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s TopupStatus) CanTransitionTo(newStatus TopupStatus) bool {
	allowed, exists := ValidTopupTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s TopupStatus) IsTerminal() bool {
	return s == TopupStatusSuccess || s == TopupStatusFailed || s == TopupStatusExpired
}

// ValidateTransition validates and returns error if transition is invalid
func (s TopupStatus) ValidateTransition(newStatus TopupStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid topup status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}
