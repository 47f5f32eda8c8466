package dto

import (
	"encoding/json"
	"time"
)

type SubscribeRequest struct {
	Subscription json.RawMessage `json:"subscription"`
	UserAgent    string          `json:"userAgent"`
	Timestamp    int64           `json:"timestamp"`
}

type SubscribeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SubscriptionDetail struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

type SubscriptionList struct {
	Success       bool                 `json:"success"`
	Subscriptions int                  `json:"subscriptions"`
	Details       []SubscriptionDetail `json:"details"`
}
