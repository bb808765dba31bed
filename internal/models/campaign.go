package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

// Schedule types
const (
	ScheduleTypeOneTime   = "one_time"
	ScheduleTypeTimeBased = "time_based"
)

// Valid state transitions: from -> []to. Completed and failed campaigns are
// re-runnable; a running campaign only ever finishes, it never goes back.
var ValidCampaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusRunning},
	CampaignStatusScheduled: {CampaignStatusDraft, CampaignStatusRunning},
	CampaignStatusRunning:   {CampaignStatusCompleted, CampaignStatusFailed},
	CampaignStatusCompleted: {CampaignStatusRunning},
	CampaignStatusFailed:    {CampaignStatusRunning},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidCampaignTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// RunnableStatuses are the legal sources of the -> running transition.
var RunnableStatuses = []string{
	CampaignStatusDraft,
	CampaignStatusScheduled,
	CampaignStatusCompleted,
	CampaignStatusFailed,
}

type Campaign struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TemplateName  string    `json:"template_name"`
	TemplateLang  string    `json:"template_lang"`
	Status        string    `json:"status"`
	ScheduleType  string    `json:"schedule_type"`
	ScheduledDays []string  `json:"scheduled_days,omitempty"` // lowercase weekday names
	ScheduledTime *string   `json:"scheduled_time,omitempty"` // "HH:MM" in the business timezone
	TotalCount    int       `json:"total_count"`
	SuccessCount  int       `json:"success_count"`
	FailedCount   int       `json:"failed_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CampaignContact is one entry of a campaign's static recipient list.
type CampaignContact struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
}
