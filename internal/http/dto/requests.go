package dto

type AuthRequest struct {
	APIKey string `json:"api_key"`
}

type ContactInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type CreateCampaignRequest struct {
	Name          string         `json:"name"`
	TemplateName  string         `json:"template_name"`
	TemplateLang  string         `json:"template_lang,omitempty"`
	ScheduleType  string         `json:"schedule_type,omitempty"` // one_time / time_based
	ScheduledDays []string       `json:"scheduled_days,omitempty"`
	ScheduledTime *string        `json:"scheduled_time,omitempty"` // HH:MM
	Contacts      []ContactInput `json:"contacts"`
}

type UpdateCampaignRequest struct {
	Name          string         `json:"name"`
	TemplateName  string         `json:"template_name"`
	TemplateLang  string         `json:"template_lang,omitempty"`
	ScheduleType  string         `json:"schedule_type,omitempty"`
	ScheduledDays []string       `json:"scheduled_days,omitempty"`
	ScheduledTime *string        `json:"scheduled_time,omitempty"`
	Contacts      []ContactInput `json:"contacts,omitempty"` // nil keeps the existing list
}
