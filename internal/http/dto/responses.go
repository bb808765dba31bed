package dto

type AuthResponse struct {
	Token  string `json:"token"`
	Tenant any    `json:"tenant"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type CampaignMessagesResponse struct {
	Campaign any `json:"campaign"`
	Messages any `json:"messages"`
}
