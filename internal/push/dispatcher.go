package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stockpulse/internal/domain"
	"stockpulse/internal/observability/metrics"
	"stockpulse/internal/store"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// Dispatcher fans a notification out to stored subscriptions. A failure for one
// subscription never affects delivery to the others.
type Dispatcher struct {
	store       store.Subscriptions
	sender      Sender
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

type Option func(*Dispatcher)

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func NewDispatcher(st store.Subscriptions, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       st,
		sender:      sender,
		concurrency: defaultConcurrency,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers payload to the subscription identified by target (endpoint
// or id) or, when target is empty, to every stored subscription. The returned
// error covers only failures before fan-out; per-target failures are reported
// in the Report.
func (d *Dispatcher) Dispatch(ctx context.Context, payload domain.NotificationPayload, target string) (Report, error) {
	targets, err := d.resolve(ctx, target)
	if err != nil {
		return Report{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Report{}, fmt.Errorf("encode payload: %w", err)
	}

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, rec := range targets {
		g.Go(func() error {
			results[i] = d.deliver(gctx, rec, body)
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	for _, res := range results {
		report.add(res)
		metrics.PushDeliveriesTotal.WithLabelValues(res.Outcome.String()).Inc()

		if res.Outcome == OutcomeDelivered {
			if err := d.store.Touch(ctx, res.Endpoint, d.now().UTC()); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
				d.log.Warn("update last used failed", "endpoint", res.Endpoint, "error", err)
			}
			continue
		}

		d.log.Warn("push delivery failed", "endpoint", res.Endpoint, "status", res.Status, "error", res.Err)
		if res.Expired() {
			if err := d.store.Remove(ctx, res.Endpoint); err != nil {
				d.log.Warn("remove expired subscription failed", "endpoint", res.Endpoint, "error", err)
				continue
			}
			report.Pruned++
			metrics.PushSubscriptionsPrunedTotal.WithLabelValues("expired").Inc()
			d.log.Info("removed expired subscription", "endpoint", res.Endpoint)
		}
	}
	return report, nil
}

func (d *Dispatcher) resolve(ctx context.Context, target string) ([]domain.SubscriptionRecord, error) {
	if target == "" {
		return d.store.List(ctx)
	}
	rec, err := d.store.Get(ctx, target)
	if errors.Is(err, store.ErrRecordNotFound) {
		rec, err = d.store.GetByID(ctx, target)
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []domain.SubscriptionRecord{*rec}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, rec domain.SubscriptionRecord, body []byte) (res Result) {
	res.Endpoint = rec.Endpoint
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("%w: sender panic: %v", ErrDeliveryFailed, p)
		}
	}()

	status, err := d.sender.Send(ctx, rec, body)
	res.Status = status
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	res.Outcome = OutcomeDelivered
	return res
}
