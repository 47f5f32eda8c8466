package service

import "stockpulse/internal/domain"

// Re-exported so transport code classifies errors against one package.
var (
	ErrInvalidSubscription = domain.ErrInvalidSubscription
	ErrNotConfigured       = domain.ErrNotConfigured
	ErrInvalidNotification = domain.ErrInvalidNotification
)
