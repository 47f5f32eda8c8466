package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MaxResponseBytes bounds responses buffered by HTTPNetwork.
const MaxResponseBytes = 10 << 20

// Network performs the requests the worker does not answer from cache.
type Network interface {
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// HTTPNetwork fetches over a real http.Client. Responses from the worker's
// origin are typed basic, all others cors.
type HTTPNetwork struct {
	hc     *http.Client
	origin *url.URL
}

func NewHTTPNetwork(origin string, timeout time.Duration) (*HTTPNetwork, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	return &HTTPNetwork{
		hc:     &http.Client{Timeout: timeout},
		origin: u,
	}, nil
}

func (n *HTTPNetwork) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	resp, err := n.hc.Do(out)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, err
	}
	typ := ResponseCORS
	if sameOrigin(n.origin, req.URL) {
		typ = ResponseBasic
	}
	return &Response{
		Status: resp.StatusCode,
		Type:   typ,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

func sameOrigin(a, b *url.URL) bool {
	return a != nil && b != nil && a.Scheme == b.Scheme && a.Host == b.Host
}
