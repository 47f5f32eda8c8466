package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"stockpulse/internal/pushjson"

	"golang.org/x/crypto/blake2b"
)

// PushSubscription is the browser PushSubscription object as serialised by
// PushSubscription.toJSON().
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime,omitempty"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscriptionRecord is one stored push subscription keyed by endpoint.
type SubscriptionRecord struct {
	Endpoint     string        `gorm:"type:text;primaryKey" json:"endpoint"`
	ID           string        `gorm:"type:varchar(32);uniqueIndex;not null" json:"id"`
	Subscription pushjson.JSON `gorm:"type:text;not null" json:"subscription"`
	UserAgent    string        `gorm:"type:text" json:"userAgent"`
	CreatedAt    time.Time     `gorm:"not null;index" json:"createdAt"`
	LastUsed     time.Time     `gorm:"not null;index" json:"lastUsed"`
}

func (SubscriptionRecord) TableName() string { return "push_subscriptions" }

// SubscriptionID derives the stable opaque identifier for an endpoint.
func SubscriptionID(endpoint string) string {
	sum := blake2b.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:16])
}

// NewSubscriptionRecord builds a record for a freshly received subscription.
// The caller must have validated that sub carries an endpoint.
func NewSubscriptionRecord(sub PushSubscription, raw pushjson.JSON, userAgent string, now time.Time) SubscriptionRecord {
	endpoint := strings.TrimSpace(sub.Endpoint)
	return SubscriptionRecord{
		Endpoint:     endpoint,
		ID:           SubscriptionID(endpoint),
		Subscription: raw,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastUsed:     now,
	}
}
