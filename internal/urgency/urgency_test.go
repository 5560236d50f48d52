package urgency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"morning_brief/internal/domain"
	"morning_brief/testdata/utils"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		factors domain.UrgencyFactors
		want    domain.Urgency
	}{
		{
			name:    "no factors defaults to fyi",
			factors: domain.UrgencyFactors{},
			want:    domain.UrgencyFYI,
		},
		{
			name:    "blocking two people beats a future due date",
			factors: domain.UrgencyFactors{BlockingCount: 2, DueDate: utils.Ptr(now.Add(5 * day))},
			want:    domain.UrgencyUrgent,
		},
		{
			name:    "past due date",
			factors: domain.UrgencyFactors{DueDate: utils.Ptr(now.Add(-day))},
			want:    domain.UrgencyUrgent,
		},
		{
			name:    "sprint risk while blocking",
			factors: domain.UrgencyFactors{SprintRisk: true, BlockingCount: 1},
			want:    domain.UrgencyUrgent,
		},
		{
			name:    "sprint risk alone is not urgent",
			factors: domain.UrgencyFactors{SprintRisk: true},
			want:    domain.UrgencyFYI,
		},
		{
			name:    "blocking one person and waiting",
			factors: domain.UrgencyFactors{BlockingCount: 1, DaysWaiting: 5},
			want:    domain.UrgencyAttention,
		},
		{
			name:    "waiting two days",
			factors: domain.UrgencyFactors{DaysWaiting: 2},
			want:    domain.UrgencyAttention,
		},
		{
			name:    "waiting one day",
			factors: domain.UrgencyFactors{DaysWaiting: 1},
			want:    domain.UrgencyFYI,
		},
		{
			name:    "due in two days",
			factors: domain.UrgencyFactors{DueDate: utils.Ptr(now.Add(2*day + time.Hour))},
			want:    domain.UrgencyAttention,
		},
		{
			name:    "due in one day",
			factors: domain.UrgencyFactors{DueDate: utils.Ptr(now.Add(day + time.Minute))},
			want:    domain.UrgencyAttention,
		},
		{
			name:    "due later today falls through",
			factors: domain.UrgencyFactors{DueDate: utils.Ptr(now.Add(3 * time.Hour))},
			want:    domain.UrgencyFYI,
		},
		{
			name:    "due later today with follow up",
			factors: domain.UrgencyFactors{DueDate: utils.Ptr(now.Add(3 * time.Hour)), IsFollowUp: true},
			want:    domain.UrgencyFollowUp,
		},
		{
			name:    "due in three days",
			factors: domain.UrgencyFactors{DueDate: utils.Ptr(now.Add(3*day + time.Hour))},
			want:    domain.UrgencyFYI,
		},
		{
			name:    "follow up beats org",
			factors: domain.UrgencyFactors{IsFollowUp: true, IsOrgSignal: true},
			want:    domain.UrgencyFollowUp,
		},
		{
			name:    "org signal",
			factors: domain.UrgencyFactors{IsOrgSignal: true},
			want:    domain.UrgencyOrg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.factors, now))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	now := time.Now()
	f := domain.UrgencyFactors{BlockingCount: 1, DaysWaiting: 3, SprintRisk: false}

	first := Classify(f, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(f, now))
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysUntil(now.Add(23*time.Hour), now))
	assert.Equal(t, 1, DaysUntil(now.Add(25*time.Hour), now))
	assert.Equal(t, -1, DaysUntil(now.Add(-time.Hour), now))
}

func TestDaysSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysSince(now.Add(-3*day-time.Hour), now))
	assert.Equal(t, 0, DaysSince(now.Add(-time.Hour), now))
	assert.Equal(t, 2, DaysSince(now.Add(2*day+time.Hour), now))
}
