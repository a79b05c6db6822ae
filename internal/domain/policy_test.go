package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCancellation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		hoursAhead    time.Duration
		wantCanCancel bool
		wantPercent   int
	}{
		{"exactly 24h gets full refund", 24 * time.Hour, true, 100},
		{"25h gets full refund", 25 * time.Hour, true, 100},
		{"just under 24h drops to 75", 24*time.Hour - time.Minute, true, 75},
		{"exactly 12h gets 75", 12 * time.Hour, true, 75},
		{"just under 12h drops to 50", 12*time.Hour - time.Minute, true, 50},
		{"exactly 2h gets 50", 2 * time.Hour, true, 50},
		{"just under 2h is rejected", 2*time.Hour - time.Minute, false, 0},
		{"class already started is rejected", -time.Hour, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := EvaluateCancellation(now.Add(tt.hoursAhead), now)
			assert.Equal(t, tt.wantCanCancel, p.CanCancel)
			assert.Equal(t, tt.wantPercent, p.RefundPercent)
			if !tt.wantCanCancel {
				assert.NotEmpty(t, p.Reason)
			}
		})
	}
}

func TestEvaluateReschedule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name              string
		hoursAhead        time.Duration
		wantCanReschedule bool
		wantFee           float64
	}{
		{"exactly 12h is free", 12 * time.Hour, true, 0},
		{"48h is free", 48 * time.Hour, true, 0},
		{"just under 12h charges the fee", 12*time.Hour - time.Minute, true, RescheduleFee},
		{"exactly 4h charges the fee", 4 * time.Hour, true, RescheduleFee},
		{"just under 4h is rejected", 4*time.Hour - time.Minute, false, 0},
		{"class already started is rejected", -time.Hour, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := EvaluateReschedule(now.Add(tt.hoursAhead), now)
			assert.Equal(t, tt.wantCanReschedule, p.CanReschedule)
			assert.Equal(t, tt.wantFee, p.Fee)
		})
	}
}

func TestPolicyErrorsUnwrapToSentinels(t *testing.T) {
	cancelErr := &CancellationPolicyError{Policy: CancellationPolicy{HoursUntilStart: 1.5}}
	assert.True(t, errors.Is(cancelErr, ErrCancellationWindowClosed))
	assert.Contains(t, cancelErr.Error(), "1.50 hours")

	reschedErr := &ReschedulePolicyError{Policy: ReschedulePolicy{HoursUntilStart: 3.2}}
	assert.True(t, errors.Is(reschedErr, ErrRescheduleWindowClosed))

	var target *CancellationPolicyError
	assert.True(t, errors.As(error(cancelErr), &target))
	assert.Equal(t, 1.5, target.Policy.HoursUntilStart)
}
