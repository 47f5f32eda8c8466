package clientsync

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type EventKind int

const (
	EventOnline EventKind = iota + 1
	EventOffline
	EventVisibilityChange
	EventBeforeUnload
	// EventStorage reports a write made by another client sharing the storage.
	EventStorage
)

func (k EventKind) String() string {
	switch k {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventVisibilityChange:
		return "visibilitychange"
	case EventBeforeUnload:
		return "beforeunload"
	case EventStorage:
		return "storage"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	// Hidden is set for EventVisibilityChange.
	Hidden bool
	// Key and NewValue are set for EventStorage.
	Key      string
	NewValue []byte
}

// EventSource delivers platform lifecycle events to a handler until the
// returned detach func is called.
type EventSource interface {
	Attach(fn func(Event)) (detach func())
}

// ChannelEvents is an in-process EventSource. Emit delivers synchronously to
// every attached handler.
type ChannelEvents struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(Event)
}

var _ EventSource = (*ChannelEvents)(nil)

func NewChannelEvents() *ChannelEvents {
	return &ChannelEvents{handlers: make(map[int]func(Event))}
}

func (c *ChannelEvents) Attach(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *ChannelEvents) Emit(ev Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.handlers))
	for _, fn := range c.handlers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Attached reports how many handlers are currently attached.
func (c *ChannelEvents) Attached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// ConnectivityProbe polls a URL and emits EventOnline / EventOffline on
// transitions. The first probe always emits.
type ConnectivityProbe struct {
	url      string
	interval time.Duration
	hc       *http.Client
	events   *ChannelEvents

	mu    sync.Mutex
	known bool
	up    bool
}

func NewConnectivityProbe(url string, interval time.Duration, events *ChannelEvents) *ConnectivityProbe {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ConnectivityProbe{
		url:      url,
		interval: interval,
		hc:       &http.Client{Timeout: 5 * time.Second},
		events:   events,
	}
}

// Check probes once and emits an event if connectivity changed. Any HTTP
// response counts as online.
func (p *ConnectivityProbe) Check(ctx context.Context) bool {
	up := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err == nil {
		resp, err := p.hc.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			up = true
		}
	}

	p.mu.Lock()
	changed := !p.known || p.up != up
	p.known, p.up = true, up
	p.mu.Unlock()

	if changed {
		kind := EventOffline
		if up {
			kind = EventOnline
		}
		slog.Debug("connectivity changed", "url", p.url, "online", up)
		p.events.Emit(Event{Kind: kind})
	}
	return up
}

// Run probes until ctx is cancelled.
func (p *ConnectivityProbe) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Check(ctx)
		}
	}
}
