package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"stockpulse/internal/domain"
	"stockpulse/internal/dto"
	"stockpulse/internal/push"
	"stockpulse/internal/service"
	"stockpulse/internal/store"
)

type fakeSender struct {
	mu       sync.Mutex
	statuses map[string]int
	calls    []string
}

func (f *fakeSender) Send(_ context.Context, rec domain.SubscriptionRecord, _ []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec.Endpoint)
	status, ok := f.statuses[rec.Endpoint]
	if !ok {
		status = http.StatusCreated
	}
	if status >= 300 {
		return status, fmt.Errorf("%w: %d %s", push.ErrDeliveryFailed, status, http.StatusText(status))
	}
	return status, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var testKeys = service.Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}

func setupService(t *testing.T, cfg service.Config) (*service.Service, *store.Memory, *fakeSender) {
	t.Helper()
	st := store.NewMemory()
	sender := &fakeSender{statuses: map[string]int{}}
	return service.New(st, push.NewDispatcher(st, sender), cfg), st, sender
}

func subscribeReq(endpoint string) dto.SubscribeRequest {
	raw, _ := json.Marshal(map[string]any{
		"endpoint": endpoint,
		"keys":     map[string]string{"p256dh": "BOr-key", "auth": "auth-secret"},
	})
	return dto.SubscribeRequest{Subscription: raw, UserAgent: "Mozilla/5.0", Timestamp: time.Now().UnixMilli()}
}

func TestSubscribeRequiresEndpoint(t *testing.T) {
	svc, st, _ := setupService(t, testKeys)
	ctx := context.Background()

	bad := []json.RawMessage{
		nil,
		json.RawMessage(`null`),
		json.RawMessage(`{}`),
		json.RawMessage(`{"keys":{"auth":"a"}}`),
		json.RawMessage(`{"endpoint":"   "}`),
		json.RawMessage(`{"endpoint":"not a url"}`),
		json.RawMessage(`{"endpoint":"ftp://push.example/abc"}`),
		json.RawMessage(`[1,2]`),
	}
	for _, raw := range bad {
		err := svc.Subscribe(ctx, dto.SubscribeRequest{Subscription: raw})
		if !errors.Is(err, service.ErrInvalidSubscription) {
			t.Fatalf("subscription %s: expected ErrInvalidSubscription, got %v", raw, err)
		}
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Fatalf("expected store unchanged, got %d records", n)
	}
}

func TestSubscribeRequiresKeys(t *testing.T) {
	svc, st, _ := setupService(t, service.Config{VAPIDPublicKey: "pub"})
	err := svc.Subscribe(context.Background(), subscribeReq("https://push.example/abc"))
	if !errors.Is(err, service.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if n, _ := st.Count(context.Background()); n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	svc, st, _ := setupService(t, testKeys)
	ctx := context.Background()

	if err := svc.Subscribe(ctx, subscribeReq("https://push.example/abc")); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	first, _ := st.Get(ctx, "https://push.example/abc")

	second := subscribeReq("https://push.example/abc")
	second.UserAgent = "Firefox"
	if err := svc.Subscribe(ctx, second); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}

	list, err := svc.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Subscriptions != 1 || len(list.Details) != 1 {
		t.Fatalf("expected exactly one subscription, got %+v", list)
	}
	got, _ := st.Get(ctx, "https://push.example/abc")
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("createdAt changed: %v -> %v", first.CreatedAt, got.CreatedAt)
	}
	if got.UserAgent != "Firefox" {
		t.Fatalf("expected user agent from second call, got %q", got.UserAgent)
	}
	if list.Details[0].ID != domain.SubscriptionID("https://push.example/abc") {
		t.Fatalf("unexpected id %q", list.Details[0].ID)
	}
}

func TestSendValidatesBeforeDelivery(t *testing.T) {
	svc, _, sender := setupService(t, testKeys)
	ctx := context.Background()
	if err := svc.Subscribe(ctx, subscribeReq("https://push.example/abc")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cases := []*domain.NotificationPayload{
		nil,
		{Body: "B"},
		{Title: "T"},
		{Title: " ", Body: " "},
	}
	for _, n := range cases {
		_, err := svc.Send(ctx, dto.SendRequest{Notification: n})
		if !errors.Is(err, service.ErrInvalidNotification) {
			t.Fatalf("notification %+v: expected ErrInvalidNotification, got %v", n, err)
		}
	}
	if sender.callCount() != 0 {
		t.Fatalf("expected no delivery attempts, got %d", sender.callCount())
	}
}

func TestSendTalliesMixedOutcomes(t *testing.T) {
	svc, _, sender := setupService(t, testKeys)
	ctx := context.Background()

	endpoints := []string{
		"https://push.example/1",
		"https://push.example/2",
		"https://push.example/3",
		"https://push.example/4",
		"https://push.example/5",
	}
	for _, ep := range endpoints {
		if err := svc.Subscribe(ctx, subscribeReq(ep)); err != nil {
			t.Fatalf("subscribe %s: %v", ep, err)
		}
	}
	sender.statuses["https://push.example/2"] = http.StatusInternalServerError
	sender.statuses["https://push.example/4"] = http.StatusTooManyRequests

	resp, err := svc.Send(ctx, dto.SendRequest{Notification: &domain.NotificationPayload{Title: "T", Body: "B"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !resp.Success || resp.Sent != 3 || resp.Failed != 2 {
		t.Fatalf("unexpected tally: %+v", resp)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("expected 2 error messages, got %v", resp.Errors)
	}
	if resp.Message != "Sent 3 notifications, 2 failed" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestSendPrunesGoneSubscription(t *testing.T) {
	svc, st, sender := setupService(t, testKeys)
	ctx := context.Background()
	for _, ep := range []string{"https://push.example/abc", "https://push.example/keep"} {
		if err := svc.Subscribe(ctx, subscribeReq(ep)); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	sender.statuses["https://push.example/abc"] = http.StatusGone

	resp, err := svc.Send(ctx, dto.SendRequest{Notification: &domain.NotificationPayload{Title: "T", Body: "B"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Sent != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected tally: %+v", resp)
	}
	if _, err := st.Get(ctx, "https://push.example/abc"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected gone subscription to be removed, got %v", err)
	}
	if _, err := st.Get(ctx, "https://push.example/keep"); err != nil {
		t.Fatalf("healthy subscription removed: %v", err)
	}
}

func TestSendToTarget(t *testing.T) {
	svc, _, sender := setupService(t, testKeys)
	ctx := context.Background()
	for _, ep := range []string{"https://push.example/a", "https://push.example/b"} {
		_ = svc.Subscribe(ctx, subscribeReq(ep))
	}

	resp, err := svc.Send(ctx, dto.SendRequest{
		Notification:         &domain.NotificationPayload{Title: "T", Body: "B"},
		TargetSubscriptionID: domain.SubscriptionID("https://push.example/b"),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Sent != 1 || sender.callCount() != 1 || sender.calls[0] != "https://push.example/b" {
		t.Fatalf("expected single delivery to b, got %+v calls=%v", resp, sender.calls)
	}

	resp, err = svc.Send(ctx, dto.SendRequest{
		Notification:         &domain.NotificationPayload{Title: "T", Body: "B"},
		TargetSubscriptionID: "https://push.example/unknown",
	})
	if err != nil {
		t.Fatalf("send unknown target: %v", err)
	}
	if resp.Sent != 0 || resp.Failed != 0 {
		t.Fatalf("expected empty working set for unknown target, got %+v", resp)
	}
}

func TestSendTestUsesSamePath(t *testing.T) {
	svc, _, sender := setupService(t, testKeys)
	ctx := context.Background()
	_ = svc.Subscribe(ctx, subscribeReq("https://push.example/abc"))

	resp, err := svc.SendTest(ctx)
	if err != nil {
		t.Fatalf("send test: %v", err)
	}
	if resp.Sent != 1 || sender.callCount() != 1 {
		t.Fatalf("expected one test delivery, got %+v", resp)
	}
}

func TestPruneIdle(t *testing.T) {
	svc, st, _ := setupService(t, testKeys)
	ctx := context.Background()

	stale := domain.NewSubscriptionRecord(domain.PushSubscription{Endpoint: "https://push.example/stale"}, nil, "", time.Now().UTC().Add(-72*time.Hour))
	_ = st.Upsert(ctx, stale)
	_ = svc.Subscribe(ctx, subscribeReq("https://push.example/fresh"))

	n, err := svc.PruneIdle(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if n, _ := svc.PruneIdle(ctx, 0); n != 0 {
		t.Fatalf("zero max idle must disable pruning, got %d", n)
	}
}
