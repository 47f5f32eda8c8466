package store

import (
	"context"
	"errors"
	"time"

	"stockpulse/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm persists subscriptions in the push_subscriptions table.
type Gorm struct {
	db *gorm.DB
}

var _ Subscriptions = (*Gorm)(nil)

// keepLatestLastUsed stops a re-subscribe from rewinding a concurrent Touch.
var keepLatestLastUsed = gorm.Expr("CASE WHEN excluded.last_used > push_subscriptions.last_used " +
	"THEN excluded.last_used ELSE push_subscriptions.last_used END")

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

func (g *Gorm) AutoMigrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&domain.SubscriptionRecord{})
}

func (g *Gorm) Upsert(ctx context.Context, rec domain.SubscriptionRecord) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.Assignments(map[string]any{
				"subscription": rec.Subscription,
				"user_agent":   rec.UserAgent,
				"last_used":    keepLatestLastUsed,
			}),
		}).
		Create(&rec).Error
}

func (g *Gorm) Get(ctx context.Context, endpoint string) (*domain.SubscriptionRecord, error) {
	return g.first(ctx, "endpoint = ?", endpoint)
}

func (g *Gorm) GetByID(ctx context.Context, id string) (*domain.SubscriptionRecord, error) {
	return g.first(ctx, "id = ?", id)
}

func (g *Gorm) first(ctx context.Context, query string, arg any) (*domain.SubscriptionRecord, error) {
	var rec domain.SubscriptionRecord
	if err := g.db.WithContext(ctx).First(&rec, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (g *Gorm) List(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	var recs []domain.SubscriptionRecord
	if err := g.db.WithContext(ctx).Order("created_at asc, endpoint asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (g *Gorm) Remove(ctx context.Context, endpoint string) error {
	return g.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&domain.SubscriptionRecord{}).Error
}

func (g *Gorm) Touch(ctx context.Context, endpoint string, at time.Time) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.SubscriptionRecord
		if err := tx.Select("endpoint").First(&rec, "endpoint = ?", endpoint).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		return tx.Model(&domain.SubscriptionRecord{}).
			Where("endpoint = ? AND last_used < ?", endpoint, at).
			Update("last_used", at).Error
	})
}

func (g *Gorm) PruneIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res := g.db.WithContext(ctx).Where("last_used < ?", cutoff).Delete(&domain.SubscriptionRecord{})
	return int(res.RowsAffected), res.Error
}

func (g *Gorm) Count(ctx context.Context) (int, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&domain.SubscriptionRecord{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}
