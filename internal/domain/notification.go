package domain

import (
	"strings"

	"stockpulse/internal/pushjson"
)

const (
	DefaultIcon  = "/icon-192x192.png"
	DefaultBadge = "/icon-192x192.png"
	DefaultTag   = "stockpulse-notification"

	ActionView  = "view"
	ActionClose = "close"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NotificationPayload is both the Send API input shape and the JSON body
// delivered to every push endpoint.
type NotificationPayload struct {
	Title              string        `json:"title"`
	Body               string        `json:"body"`
	Icon               string        `json:"icon,omitempty"`
	Badge              string        `json:"badge,omitempty"`
	Data               pushjson.JSON `json:"data,omitempty"`
	Tag                string        `json:"tag,omitempty"`
	RequireInteraction bool          `json:"requireInteraction"`
	Actions            []Action      `json:"actions,omitempty"`
}

func DefaultActions() []Action {
	return []Action{
		{Action: ActionView, Title: "View Details", Icon: DefaultIcon},
		{Action: ActionClose, Title: "Close"},
	}
}

// Validate checks the fields a notification cannot be delivered without.
func (p NotificationPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Body) == "" {
		return ErrInvalidNotification
	}
	return nil
}

// WithDefaults returns a copy with icon, badge, tag, data and actions filled in.
func (p NotificationPayload) WithDefaults() NotificationPayload {
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if p.Tag == "" {
		p.Tag = DefaultTag
	}
	if p.Data.IsNull() {
		p.Data = pushjson.JSON(`{}`)
	}
	if len(p.Actions) == 0 {
		p.Actions = DefaultActions()
	} else {
		p.Actions = append([]Action(nil), p.Actions...)
	}
	return p
}
