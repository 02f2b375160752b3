package domain

import "errors"

var (
	// ErrConfiguration marks a missing or contradictory automation config.
	ErrConfiguration = errors.New("invalid automation configuration")
	// ErrNoEligibleAgent is returned when no agent survives the selection filters.
	ErrNoEligibleAgent = errors.New("no eligible agent")
	// ErrDelivery marks a notification that reached no recipient.
	ErrDelivery = errors.New("notification delivery failed")
)
