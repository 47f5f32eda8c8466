package dto

import "stockpulse/internal/domain"

type SendRequest struct {
	Notification         *domain.NotificationPayload `json:"notification"`
	TargetSubscriptionID string                      `json:"targetSubscriptionId,omitempty"`
}

type SendResponse struct {
	Success bool     `json:"success"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}
