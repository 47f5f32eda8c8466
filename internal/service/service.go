package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"stockpulse/internal/domain"
	"stockpulse/internal/dto"
	"stockpulse/internal/observability/metrics"
	"stockpulse/internal/push"
	"stockpulse/internal/pushjson"
	"stockpulse/internal/store"
)

const MaxUserAgentLength = 512

// Dispatcher is the fan-out dependency of the Send API.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload domain.NotificationPayload, target string) (push.Report, error)
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

type Service struct {
	store      store.Subscriptions
	dispatcher Dispatcher
	cfg        Config
	now        func() time.Time
}

func New(st store.Subscriptions, d Dispatcher, cfg Config) *Service {
	return &Service{store: st, dispatcher: d, cfg: cfg, now: time.Now}
}

func (s *Service) keysConfigured() bool {
	return strings.TrimSpace(s.cfg.VAPIDPublicKey) != "" && strings.TrimSpace(s.cfg.VAPIDPrivateKey) != ""
}

// Subscribe validates a browser subscription and upserts it by endpoint.
func (s *Service) Subscribe(ctx context.Context, req dto.SubscribeRequest) error {
	raw := bytes.TrimSpace(req.Subscription)
	if len(raw) == 0 || string(raw) == "null" {
		metrics.PushSubscriptionsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: subscription is required", ErrInvalidSubscription)
	}
	var sub domain.PushSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		metrics.PushSubscriptionsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}
	if err := validateEndpoint(sub.Endpoint); err != nil {
		metrics.PushSubscriptionsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	if !s.keysConfigured() {
		metrics.PushSubscriptionsTotal.WithLabelValues("not_configured").Inc()
		return ErrNotConfigured
	}

	rec := domain.NewSubscriptionRecord(sub, pushjson.JSON(raw), truncateUserAgent(req.UserAgent), s.now().UTC())
	if err := s.store.Upsert(ctx, rec); err != nil {
		metrics.PushSubscriptionsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PushSubscriptionsTotal.WithLabelValues("success").Inc()
	s.refreshActiveGauge(ctx)
	slog.Info("push subscription stored", "subscription_id", rec.ID, "user_agent", rec.UserAgent)
	return nil
}

func validateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute http(s) URL", ErrInvalidSubscription)
	}
	return nil
}

func truncateUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	return string([]rune(ua)[:MaxUserAgentLength])
}

// ListSubscriptions returns the diagnostic projection of every stored record.
func (s *Service) ListSubscriptions(ctx context.Context) (dto.SubscriptionList, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return dto.SubscriptionList{}, err
	}
	details := make([]dto.SubscriptionDetail, 0, len(recs))
	for _, rec := range recs {
		details = append(details, dto.SubscriptionDetail{
			ID:        rec.ID,
			Endpoint:  rec.Endpoint,
			CreatedAt: rec.CreatedAt,
			LastUsed:  rec.LastUsed,
		})
	}
	return dto.SubscriptionList{Success: true, Subscriptions: len(details), Details: details}, nil
}

// Send validates the notification, applies defaults and dispatches it.
func (s *Service) Send(ctx context.Context, req dto.SendRequest) (dto.SendResponse, error) {
	if req.Notification == nil {
		return dto.SendResponse{}, fmt.Errorf("%w: notification is required", ErrInvalidNotification)
	}
	if err := req.Notification.Validate(); err != nil {
		return dto.SendResponse{}, fmt.Errorf("%w: title and body are required", err)
	}
	payload := req.Notification.WithDefaults()

	report, err := s.dispatcher.Dispatch(ctx, payload, strings.TrimSpace(req.TargetSubscriptionID))
	if err != nil {
		return dto.SendResponse{}, err
	}
	if report.Pruned > 0 {
		s.refreshActiveGauge(ctx)
	}
	slog.Info("push notification dispatched", "tag", payload.Tag, "sent", report.Sent, "failed", report.Failed, "pruned", report.Pruned)

	return dto.SendResponse{
		Success: true,
		Sent:    report.Sent,
		Failed:  report.Failed,
		Message: fmt.Sprintf("Sent %d notifications, %d failed", report.Sent, report.Failed),
		Errors:  report.Errors,
	}, nil
}

// SendTest sends a canned notification through Send.
func (s *Service) SendTest(ctx context.Context) (dto.SendResponse, error) {
	data, err := pushjson.From(map[string]any{
		"type":      "test",
		"url":       "/",
		"timestamp": s.now().UnixMilli(),
	})
	if err != nil {
		return dto.SendResponse{}, err
	}
	return s.Send(ctx, dto.SendRequest{Notification: &domain.NotificationPayload{
		Title: "StockPulse Test Notification",
		Body:  "Push notifications are working!",
		Tag:   "stockpulse-test",
		Data:  data,
	}})
}

// PruneIdle removes subscriptions that have not been used for maxIdle.
func (s *Service) PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		return 0, nil
	}
	n, err := s.store.PruneIdle(ctx, s.now().UTC().Add(-maxIdle))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.PushSubscriptionsPrunedTotal.WithLabelValues("idle").Add(float64(n))
		s.refreshActiveGauge(ctx)
	}
	return n, nil
}

func (s *Service) refreshActiveGauge(ctx context.Context) {
	if n, err := s.store.Count(ctx); err == nil {
		metrics.PushSubscriptionsActive.Set(float64(n))
	}
}
