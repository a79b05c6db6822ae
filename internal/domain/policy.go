package domain

import (
	"fmt"
	"time"
)

// RescheduleFee is charged when rescheduling inside the fee window.
const RescheduleFee = 5.00

// CancellationPolicy is the machine-readable outcome of the cancellation
// window check, returned to the client so it can render why, not just that,
// a cancellation was rejected.
type CancellationPolicy struct {
	CanCancel       bool    `json:"can_cancel"`
	RefundPercent   int     `json:"refund_percent"`
	HoursUntilStart float64 `json:"hours_until_start"`
	Reason          string  `json:"reason,omitempty"`
}

// ReschedulePolicy is the machine-readable outcome of the reschedule window check.
type ReschedulePolicy struct {
	CanReschedule   bool    `json:"can_reschedule"`
	Fee             float64 `json:"fee"`
	HoursUntilStart float64 `json:"hours_until_start"`
	Reason          string  `json:"reason,omitempty"`
}

// EvaluateCancellation applies the time-based refund table:
// >=24h 100%, >=12h 75%, >=2h 50%, otherwise cancellation is rejected.
func EvaluateCancellation(start, now time.Time) CancellationPolicy {
	hours := start.Sub(now).Hours()
	p := CancellationPolicy{HoursUntilStart: hours}

	switch {
	case hours >= 24:
		p.CanCancel = true
		p.RefundPercent = 100
	case hours >= 12:
		p.CanCancel = true
		p.RefundPercent = 75
	case hours >= 2:
		p.CanCancel = true
		p.RefundPercent = 50
	default:
		p.Reason = "cancellations must be requested at least 2 hours before start"
	}
	return p
}

// EvaluateReschedule applies the reschedule table: >=12h free, >=4h $5 fee,
// otherwise rejected.
func EvaluateReschedule(start, now time.Time) ReschedulePolicy {
	hours := start.Sub(now).Hours()
	p := ReschedulePolicy{HoursUntilStart: hours}

	switch {
	case hours >= 12:
		p.CanReschedule = true
	case hours >= 4:
		p.CanReschedule = true
		p.Fee = RescheduleFee
	default:
		p.Reason = "reschedules must be requested at least 4 hours before start"
	}
	return p
}

// CancellationPolicyError carries the policy details for a rejected cancellation.
type CancellationPolicyError struct {
	Policy CancellationPolicy
}

func (e *CancellationPolicyError) Error() string {
	return fmt.Sprintf("%v: %.2f hours until start", ErrCancellationWindowClosed, e.Policy.HoursUntilStart)
}

// Unwrap lets callers match the sentinel with errors.Is.
func (e *CancellationPolicyError) Unwrap() error {
	return ErrCancellationWindowClosed
}

// ReschedulePolicyError carries the policy details for a rejected reschedule.
type ReschedulePolicyError struct {
	Policy ReschedulePolicy
}

func (e *ReschedulePolicyError) Error() string {
	return fmt.Sprintf("%v: %.2f hours until start", ErrRescheduleWindowClosed, e.Policy.HoursUntilStart)
}

// Unwrap lets callers match the sentinel with errors.Is.
func (e *ReschedulePolicyError) Unwrap() error {
	return ErrRescheduleWindowClosed
}
