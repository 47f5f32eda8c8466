package store

import (
	"context"
	"errors"
	"time"

	"stockpulse/internal/domain"
)

var ErrRecordNotFound = errors.New("record not found")

// Subscriptions is the subscription store contract shared by the in-memory and
// database-backed implementations.
type Subscriptions interface {
	// Upsert inserts rec or overwrites the record with the same endpoint. An
	// existing record keeps its original CreatedAt.
	Upsert(ctx context.Context, rec domain.SubscriptionRecord) error
	Get(ctx context.Context, endpoint string) (*domain.SubscriptionRecord, error)
	GetByID(ctx context.Context, id string) (*domain.SubscriptionRecord, error)
	// List returns every record in insertion order.
	List(ctx context.Context) ([]domain.SubscriptionRecord, error)
	// Remove deletes the record for endpoint; removing a missing record is a no-op.
	Remove(ctx context.Context, endpoint string) error
	// Touch moves LastUsed forward to at; it never moves it backwards.
	Touch(ctx context.Context, endpoint string, at time.Time) error
	// PruneIdle removes records whose LastUsed is before cutoff.
	PruneIdle(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
