package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockpulse/internal/domain"
	"stockpulse/internal/push"
	"stockpulse/internal/pushjson"
	"stockpulse/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, st store.Subscriptions, endpoint string, at time.Time) domain.SubscriptionRecord {
	t.Helper()
	sub := domain.PushSubscription{Endpoint: endpoint}
	raw, err := pushjson.From(sub)
	require.NoError(t, err)
	rec := domain.NewSubscriptionRecord(sub, raw, "test", at)
	require.NoError(t, st.Upsert(context.Background(), rec))
	return rec
}

func payload() domain.NotificationPayload {
	return domain.NotificationPayload{Title: "AAPL", Body: "Above 200"}.WithDefaults()
}

// pushService answers each path with the configured status and records the
// bodies it received.
type pushService struct {
	mu       sync.Mutex
	statuses map[string]int
	bodies   map[string][]byte
	headers  map[string]http.Header
}

func newPushService(t *testing.T, statuses map[string]int) (*httptest.Server, *pushService) {
	t.Helper()
	ps := &pushService{statuses: statuses, bodies: map[string][]byte{}, headers: map[string]http.Header{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ps.mu.Lock()
		ps.bodies[r.URL.Path] = body
		ps.headers[r.URL.Path] = r.Header.Clone()
		status, ok := ps.statuses[r.URL.Path]
		ps.mu.Unlock()
		if !ok {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ps
}

func TestDispatchBroadcastTallies(t *testing.T) {
	srv, ps := newPushService(t, map[string]int{
		"/fail":  http.StatusInternalServerError,
		"/limit": http.StatusTooManyRequests,
	})
	st := store.NewMemory()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range []string{"/a", "/fail", "/b", "/limit", "/c"} {
		seed(t, st, srv.URL+p, start)
	}

	later := start.Add(time.Hour)
	d := push.NewDispatcher(st, push.NewHTTPSender(5*time.Second),
		push.WithConcurrency(2),
		push.WithClock(func() time.Time { return later }),
	)
	report, err := d.Dispatch(context.Background(), payload(), "")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Pruned)
	assert.Len(t, report.Errors, 2)
	assert.Len(t, report.Results, 5)

	ok, err := st.Get(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.True(t, ok.LastUsed.Equal(later), "delivered record should be touched")

	failed, err := st.Get(context.Background(), srv.URL+"/fail")
	require.NoError(t, err)
	assert.True(t, failed.LastUsed.Equal(start), "failed record must keep lastUsed")

	ps.mu.Lock()
	defer ps.mu.Unlock()
	var got domain.NotificationPayload
	require.NoError(t, json.Unmarshal(ps.bodies["/a"], &got))
	assert.Equal(t, "AAPL", got.Title)
	assert.Equal(t, domain.DefaultTag, got.Tag)
	assert.Equal(t, "application/json", ps.headers["/a"].Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(push.DefaultTTL), ps.headers["/a"].Get("TTL"))
}

func TestDispatchPrunesGoneOnly(t *testing.T) {
	srv, _ := newPushService(t, map[string]int{
		"/gone":   http.StatusGone,
		"/broken": http.StatusNotFound,
	})
	st := store.NewMemory()
	now := time.Now().UTC()
	for _, p := range []string{"/gone", "/broken", "/ok"} {
		seed(t, st, srv.URL+p, now)
	}

	d := push.NewDispatcher(st, push.NewHTTPSender(5*time.Second))
	report, err := d.Dispatch(context.Background(), payload(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Pruned)

	_, err = st.Get(context.Background(), srv.URL+"/gone")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
	_, err = st.Get(context.Background(), srv.URL+"/broken")
	assert.NoError(t, err)
	n, _ := st.Count(context.Background())
	assert.Equal(t, 2, n)
}

func TestDispatchKeepsRecordOnConnectionFailure(t *testing.T) {
	// Grab a free port, then close it so every dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	st := store.NewMemory()
	endpoints := []string{
		fmt.Sprintf("http://127.0.0.1:%d/410", port),
		fmt.Sprintf("http://127.0.0.1:%d/gone", port),
	}
	for _, ep := range endpoints {
		seed(t, st, ep, time.Now().UTC())
	}

	d := push.NewDispatcher(st, push.NewHTTPSender(2*time.Second))
	report, err := d.Dispatch(context.Background(), payload(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Pruned)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDispatchTarget(t *testing.T) {
	srv, ps := newPushService(t, nil)
	st := store.NewMemory()
	now := time.Now().UTC()
	seed(t, st, srv.URL+"/a", now)
	b := seed(t, st, srv.URL+"/b", now)

	d := push.NewDispatcher(st, push.NewHTTPSender(5*time.Second))

	report, err := d.Dispatch(context.Background(), payload(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	report, err = d.Dispatch(context.Background(), payload(), srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	report, err = d.Dispatch(context.Background(), payload(), "missing")
	require.NoError(t, err)
	assert.Zero(t, report.Sent+report.Failed)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	assert.Len(t, ps.bodies, 2)
}

func TestDispatchEmptyStore(t *testing.T) {
	var calls atomic.Int32
	d := push.NewDispatcher(store.NewMemory(), senderFunc(func(context.Context, domain.SubscriptionRecord, []byte) (int, error) {
		calls.Add(1)
		return http.StatusCreated, nil
	}))
	report, err := d.Dispatch(context.Background(), payload(), "")
	require.NoError(t, err)
	assert.Zero(t, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Zero(t, calls.Load())
}

type senderFunc func(context.Context, domain.SubscriptionRecord, []byte) (int, error)

func (f senderFunc) Send(ctx context.Context, rec domain.SubscriptionRecord, body []byte) (int, error) {
	return f(ctx, rec, body)
}

func TestDispatchIsolatesPanics(t *testing.T) {
	st := store.NewMemory()
	now := time.Now().UTC()
	seed(t, st, "https://push.example/panic", now)
	seed(t, st, "https://push.example/ok", now)

	d := push.NewDispatcher(st, senderFunc(func(_ context.Context, rec domain.SubscriptionRecord, _ []byte) (int, error) {
		if rec.Endpoint == "https://push.example/panic" {
			panic("boom")
		}
		return http.StatusCreated, nil
	}))
	report, err := d.Dispatch(context.Background(), payload(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	n, _ := st.Count(context.Background())
	assert.Equal(t, 2, n)
}

func TestResultExpired(t *testing.T) {
	cases := []struct {
		name string
		res  push.Result
		want bool
	}{
		{"delivered", push.Result{Outcome: push.OutcomeDelivered, Status: 201}, false},
		{"gone status", push.Result{Outcome: push.OutcomeFailed, Status: http.StatusGone}, true},
		{"not found status", push.Result{Outcome: push.OutcomeFailed, Status: http.StatusNotFound}, false},
		{"server error", push.Result{Outcome: push.OutcomeFailed, Status: 500, Err: errors.New("410 in body text")}, false},
		{"gone sentinel", push.Result{Outcome: push.OutcomeFailed, Err: fmt.Errorf("%w: 410 Gone", push.ErrSubscriptionGone)}, true},
		{"gone text only", push.Result{Outcome: push.OutcomeFailed, Err: errors.New("subscription gone")}, false},
		{
			"transport error naming 410 port",
			push.Result{
				Endpoint: "http://127.0.0.1:41077/abc",
				Outcome:  push.OutcomeFailed,
				Err:      errors.New(`Post "http://127.0.0.1:41077/abc": dial tcp 127.0.0.1:41077: connect: connection refused`),
			},
			false,
		},
		{"no error", push.Result{Outcome: push.OutcomeFailed}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.res.Expired())
		})
	}
}
