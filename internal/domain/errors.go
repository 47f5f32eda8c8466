package domain

import "errors"

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrNotConfigured       = errors.New("push keys not configured")
	ErrInvalidNotification = errors.New("invalid notification data")
)
