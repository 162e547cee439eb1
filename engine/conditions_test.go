package engine

import (
	"testing"
	"time"

	"calldeck/models"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestEvaluateConditions(t *testing.T) {
	// 2026-03-14 is a Saturday
	saturday := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 16, 10, 30, 0, 0, time.UTC)

	contact := &models.Contact{LeadTier: "warm", LeadScore: 50}

	tests := []struct {
		name       string
		cond       *models.StepConditions
		now        time.Time
		prevResult string
		want       bool
	}{
		{name: "nil conditions pass", cond: nil, now: monday, want: true},
		{name: "empty conditions pass", cond: &models.StepConditions{}, now: saturday, want: true},
		{
			name: "weekday set excludes saturday",
			cond: &models.StepConditions{DaysOfWeek: []int{1, 2, 3, 4, 5}},
			now:  saturday,
			want: false,
		},
		{
			name: "weekday set includes monday",
			cond: &models.StepConditions{DaysOfWeek: []int{1, 2, 3, 4, 5}},
			now:  monday,
			want: true,
		},
		{
			name: "time window start boundary inclusive",
			cond: &models.StepConditions{TimeFrom: "10:30", TimeTo: "17:00"},
			now:  monday,
			want: true,
		},
		{
			name: "time window end boundary inclusive",
			cond: &models.StepConditions{TimeFrom: "08:00", TimeTo: "10:30"},
			now:  monday,
			want: true,
		},
		{
			name: "before window",
			cond: &models.StepConditions{TimeFrom: "10:31"},
			now:  monday,
			want: false,
		},
		{
			name: "after window",
			cond: &models.StepConditions{TimeTo: "10:29"},
			now:  monday,
			want: false,
		},
		{
			name: "lead tier match",
			cond: &models.StepConditions{LeadTiers: []string{"hot", "warm"}},
			now:  monday,
			want: true,
		},
		{
			name: "lead tier mismatch",
			cond: &models.StepConditions{LeadTiers: []string{"hot"}},
			now:  monday,
			want: false,
		},
		{
			name: "score range inclusive",
			cond: &models.StepConditions{MinLeadScore: intPtr(50), MaxLeadScore: intPtr(50)},
			now:  monday,
			want: true,
		},
		{
			name: "score below min",
			cond: &models.StepConditions{MinLeadScore: intPtr(51)},
			now:  monday,
			want: false,
		},
		{
			name: "score above max",
			cond: &models.StepConditions{MaxLeadScore: intPtr(49)},
			now:  monday,
			want: false,
		},
		{
			name:       "previous step result match",
			cond:       &models.StepConditions{PreviousStepResult: "sent"},
			now:        monday,
			prevResult: "sent",
			want:       true,
		},
		{
			name:       "previous step result mismatch",
			cond:       &models.StepConditions{PreviousStepResult: "sent"},
			now:        monday,
			prevResult: "failed",
			want:       false,
		},
		{
			name: "all present fields must hold",
			cond: &models.StepConditions{
				DaysOfWeek: []int{1},
				LeadTiers:  []string{"warm"},
				TimeTo:     "09:00",
			},
			now:  monday,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions(tt.cond, contact, tt.prevResult, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}
