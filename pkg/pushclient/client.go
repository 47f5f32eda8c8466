// Package pushclient is a typed client for the StockPulse push API.
package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockpulse/internal/domain"
	"stockpulse/internal/dto"
	"stockpulse/internal/httpx"
)

type (
	Subscription     = domain.PushSubscription
	Notification     = domain.NotificationPayload
	SubscriptionList = dto.SubscriptionList
	SendResult       = dto.SendResponse
)

// APIError is a non-2xx response from the push API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("push api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("push api: %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

// WithToken sets the bearer token sent to the trigger endpoints.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:8085"
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Subscribe(ctx context.Context, sub Subscription, userAgent string) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	req := dto.SubscribeRequest{Subscription: raw, UserAgent: userAgent, Timestamp: time.Now().UnixMilli()}
	var res dto.SubscribeResponse
	return c.do(ctx, http.MethodPost, "/api/push/subscribe", req, &res)
}

func (c *Client) ListSubscriptions(ctx context.Context) (SubscriptionList, error) {
	var res SubscriptionList
	err := c.do(ctx, http.MethodGet, "/api/push/subscribe", nil, &res)
	return res, err
}

// Send delivers n to every subscription, or only to target (endpoint or id)
// when it is non-empty.
func (c *Client) Send(ctx context.Context, n Notification, target string) (SendResult, error) {
	var res SendResult
	err := c.do(ctx, http.MethodPost, "/api/push/send", dto.SendRequest{Notification: &n, TargetSubscriptionID: target}, &res)
	return res, err
}

func (c *Client) SendTest(ctx context.Context) (SendResult, error) {
	var res SendResult
	err := c.do(ctx, http.MethodGet, "/api/push/send", nil, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		var e httpx.ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e) == nil && e.Code != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
