// Package urgency classifies signals into urgency tiers.
package urgency

import (
	"math"
	"time"

	"morning_brief/internal/domain"
)

const (
	day = 24 * time.Hour

	// dueSoonDays is the upper bound of the "due soon" window in whole days.
	dueSoonDays = 2
)

// Classify maps factors to a tier. Rules are evaluated in order and the first
// match wins.
func Classify(f domain.UrgencyFactors, now time.Time) domain.Urgency {
	if f.BlockingCount >= 2 {
		return domain.UrgencyUrgent
	}
	if f.DueDate != nil && f.DueDate.Before(now) {
		return domain.UrgencyUrgent
	}
	if f.SprintRisk && f.BlockingCount > 0 {
		return domain.UrgencyUrgent
	}

	if f.BlockingCount == 1 {
		return domain.UrgencyAttention
	}
	if f.DaysWaiting >= 2 {
		return domain.UrgencyAttention
	}
	// Something due later today has daysUntil == 0 and does not qualify.
	if f.DueDate != nil {
		daysUntil := DaysUntil(*f.DueDate, now)
		if daysUntil > 0 && daysUntil <= dueSoonDays {
			return domain.UrgencyAttention
		}
	}

	if f.IsFollowUp {
		return domain.UrgencyFollowUp
	}
	if f.IsOrgSignal {
		return domain.UrgencyOrg
	}

	return domain.UrgencyFYI
}

// DaysUntil returns the floor of whole days from now until t.
func DaysUntil(t, now time.Time) int {
	return int(math.Floor(float64(t.Sub(now)) / float64(day)))
}

// DaysSince returns the whole days between t and now, ignoring direction.
func DaysSince(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	return int(d / day)
}
