// Package refund decides how much of a cancelled booking's price goes back to
// the player and drives the payment gateway accordingly.
package refund

import "github.com/codr1/courtbook/internal/models"

// Decision is the refund owed for a cancellation.
type Decision struct {
	Percent     int   `json:"percent"`
	AmountMinor int64 `json:"amount"`
}

// Calculate applies the tiered policy. hoursUntilStart may be negative.
// Cancelling between the partial and no-refund thresholds refunds nothing,
// the same as cancelling past the no-refund threshold.
func Calculate(priceMinor int64, hoursUntilStart float64, policy models.CancellationPolicy) Decision {
	switch {
	case hoursUntilStart >= float64(policy.FreeCancellationHours):
		return Full(priceMinor)
	case hoursUntilStart >= float64(policy.PartialRefundHours):
		return Decision{
			Percent:     policy.PartialRefundPercent,
			AmountMinor: percentOf(priceMinor, policy.PartialRefundPercent),
		}
	default:
		return Decision{}
	}
}

// Full is the operator override: everything back.
func Full(priceMinor int64) Decision {
	return Decision{Percent: 100, AmountMinor: max(priceMinor, 0)}
}

func percentOf(priceMinor int64, percent int) int64 {
	if priceMinor <= 0 || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return priceMinor
	}
	return (priceMinor*int64(percent) + 50) / 100
}
