package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"stockpulse/internal/domain"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// DefaultTTL is how long, in seconds, push services keep an undelivered message.
const DefaultTTL = 86400

var (
	ErrDeliveryFailed = errors.New("push delivery failed")
	// ErrSubscriptionGone marks a response telling us the subscription has
	// expired or was revoked.
	ErrSubscriptionGone = errors.New("push subscription gone")
)

// Sender delivers an already serialised payload to one subscription and returns
// the push service's status code.
type Sender interface {
	Send(ctx context.Context, rec domain.SubscriptionRecord, body []byte) (int, error)
}

// HTTPSender POSTs the JSON payload to the endpoint as-is, without payload
// encryption or VAPID headers.
type HTTPSender struct {
	hc  *http.Client
	ttl int
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		ttl: DefaultTTL,
	}
}

func (s *HTTPSender) Send(ctx context.Context, rec domain.SubscriptionRecord, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", strconv.Itoa(s.ttl))

	resp, err := s.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(resp)
}

// WebPushSender encrypts the payload and signs the request with VAPID keys.
type WebPushSender struct {
	hc         *http.Client
	subscriber string
	publicKey  string
	privateKey string
	ttl        int
}

func NewWebPushSender(subscriber, publicKey, privateKey string, timeout time.Duration) *WebPushSender {
	return &WebPushSender{
		hc:         &http.Client{Timeout: timeout},
		subscriber: subscriber,
		publicKey:  publicKey,
		privateKey: privateKey,
		ttl:        DefaultTTL,
	}
}

func (s *WebPushSender) Send(ctx context.Context, rec domain.SubscriptionRecord, body []byte) (int, error) {
	var sub webpush.Subscription
	if err := rec.Subscription.Decode(&sub); err != nil {
		return 0, fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Endpoint == "" {
		sub.Endpoint = rec.Endpoint
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &sub, &webpush.Options{
		HTTPClient:      s.hc,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) (int, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	cause := ErrDeliveryFailed
	if resp.StatusCode == http.StatusGone {
		cause = fmt.Errorf("%w: %w", ErrDeliveryFailed, ErrSubscriptionGone)
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if len(bytes.TrimSpace(snippet)) > 0 {
		return resp.StatusCode, fmt.Errorf("%w: %s: %s", cause, resp.Status, bytes.TrimSpace(snippet))
	}
	return resp.StatusCode, fmt.Errorf("%w: %s", cause, resp.Status)
}
