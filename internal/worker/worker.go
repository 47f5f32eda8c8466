// Package worker models the StockPulse service worker: its lifecycle, push
// and notification-click handling, cache-first fetch interception and
// message commands.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"stockpulse/internal/domain"
)

const (
	Version          = "1.0.0"
	StaticCacheName  = "stockpulse-static-v" + Version
	DynamicCacheName = "stockpulse-dynamic-v" + Version

	OfflinePath         = "/offline.html"
	DefaultDynamicLimit = 50

	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
)

// StaticAssets are cached on install; all must be fetchable.
var StaticAssets = []string{
	"/",
	"/manifest.json",
	"/icon-192x192.png",
	"/icon-512x512.png",
	OfflinePath,
}

var (
	ErrInstallFailed  = errors.New("worker: install failed")
	ErrInvalidState   = errors.New("worker: invalid lifecycle state")
	ErrUnknownMessage = errors.New("worker: unknown message")
	ErrOffline        = errors.New("worker: network unavailable")
)

type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// DefaultPushPayload is shown when a push message cannot be understood.
func DefaultPushPayload() domain.NotificationPayload {
	return domain.NotificationPayload{
		Title: "StockPulse",
		Body:  "You have a new stock alert",
	}.WithDefaults()
}

type Options struct {
	// Origin the worker is registered for, e.g. https://stockpulse.app.
	Origin       string
	Network      Network
	Notifier     Notifier
	Clients      Clients
	Caches       *CacheStorage
	Assets       []string
	DynamicLimit int
	Logger       *slog.Logger
}

type Worker struct {
	origin   *url.URL
	network  Network
	notifier Notifier
	clients  Clients
	caches   *CacheStorage
	assets   []string
	dynLimit int
	log      *slog.Logger

	mu          sync.Mutex
	state       State
	skipWaiting bool
}

func New(opts Options) (*Worker, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("worker: invalid origin %q", opts.Origin)
	}
	if opts.Network == nil {
		return nil, errors.New("worker: network is required")
	}
	w := &Worker{
		origin:   origin,
		network:  opts.Network,
		notifier: opts.Notifier,
		clients:  opts.Clients,
		caches:   opts.Caches,
		assets:   opts.Assets,
		dynLimit: opts.DynamicLimit,
		log:      opts.Logger,
	}
	if w.notifier == nil {
		w.notifier = NewWriterNotifier(nopWriter{})
	}
	if w.clients == nil {
		w.clients = NoClients{}
	}
	if w.caches == nil {
		w.caches = NewCacheStorage()
	}
	if len(w.assets) == 0 {
		w.assets = StaticAssets
	}
	if w.dynLimit == 0 {
		w.dynLimit = DefaultDynamicLimit
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Caches() *CacheStorage { return w.caches }

func (w *Worker) transition(from []State, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			w.log.Debug("worker state changed", "from", w.state.String(), "to", to.String())
			w.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, w.state, to)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return w.origin.ResolveReference(ref).String()
}

// Start installs the worker and, since installation requests skip-waiting,
// activates it straight away.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	skip := w.skipWaiting
	w.mu.Unlock()
	if skip {
		return w.Activate(ctx)
	}
	return nil
}

// Install caches every static asset. A single failed fetch makes the worker
// redundant.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition([]State{StateParsed}, StateInstalling); err != nil {
		return err
	}

	static := w.caches.Open(StaticCacheName)
	for _, asset := range w.assets {
		key := w.resolve(asset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %s: %v", ErrInstallFailed, asset, err)
		}
		resp, err := w.network.Fetch(ctx, req)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %s: %v", ErrInstallFailed, asset, err)
		}
		if resp.Status < 200 || resp.Status >= 300 {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %s: status %d", ErrInstallFailed, asset, resp.Status)
		}
		static.Put(key, resp)
	}

	w.mu.Lock()
	w.state = StateInstalled
	w.skipWaiting = true
	w.mu.Unlock()
	w.log.Info("worker installed", "cache", StaticCacheName, "assets", len(w.assets))
	return nil
}

// SkipWaiting activates an installed worker immediately.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	w.skipWaiting = true
	installed := w.state == StateInstalled
	w.mu.Unlock()
	if !installed {
		return nil
	}
	return w.Activate(ctx)
}

// Activate deletes caches from other generations and claims open clients.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.transition([]State{StateInstalled}, StateActivating); err != nil {
		return err
	}

	for _, name := range w.caches.Keys() {
		if name != StaticCacheName && name != DynamicCacheName {
			w.caches.Delete(name)
			w.log.Info("deleted stale cache", "cache", name)
		}
	}
	w.caches.Open(DynamicCacheName).SetLimit(w.dynLimit)

	if err := w.clients.Claim(ctx); err != nil {
		w.log.Warn("claim clients failed", "error", err)
	}
	w.setState(StateActivated)
	w.log.Info("worker activated", "version", Version)
	return nil
}

// HandlePush shows exactly one notification for a push message. Bodies that
// do not parse or carry no title fall back to DefaultPushPayload.
func (w *Worker) HandlePush(ctx context.Context, data []byte) (domain.NotificationPayload, error) {
	payload := DefaultPushPayload()
	var p domain.NotificationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		w.log.Warn("push payload not parsable, using default", "error", err)
	} else if strings.TrimSpace(p.Title) == "" {
		w.log.Warn("push payload has no title, using default")
	} else {
		payload = p.WithDefaults()
	}

	if err := w.notifier.Show(ctx, payload); err != nil {
		return payload, fmt.Errorf("show notification: %w", err)
	}
	return payload, nil
}

// HandleNotificationClick closes the notification and, unless the close
// action was chosen, focuses a same-origin window or opens the root page.
func (w *Worker) HandleNotificationClick(ctx context.Context, n domain.NotificationPayload, action string) error {
	if err := w.notifier.Close(ctx, n.Tag); err != nil {
		w.log.Warn("close notification failed", "tag", n.Tag, "error", err)
	}
	if action == domain.ActionClose {
		return nil
	}

	open, err := w.clients.MatchAll(ctx)
	if err != nil {
		return err
	}
	for _, c := range open {
		u, err := url.Parse(c.URL())
		if err != nil || !sameOrigin(w.origin, u) {
			continue
		}
		return c.Focus(ctx)
	}
	return w.clients.OpenWindow(ctx, w.resolve("/"))
}

// HandleFetch answers req cache-first. handled is false for requests the
// worker does not intercept (non-GET or non-http(s)).
func (w *Worker) HandleFetch(ctx context.Context, req *http.Request) (resp *Response, handled bool, err error) {
	if req.Method != http.MethodGet || req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return nil, false, nil
	}
	key := req.URL.String()

	if cached, ok := w.caches.Match(key); ok {
		return cached, true, nil
	}

	resp, err = w.network.Fetch(ctx, req)
	if err != nil {
		if isNavigation(req) {
			if offline, ok := w.caches.Match(w.resolve(OfflinePath)); ok {
				return offline, true, nil
			}
		}
		return nil, true, fmt.Errorf("%w: %v", ErrOffline, err)
	}
	if resp.Status == http.StatusOK && resp.Type == ResponseBasic {
		dyn := w.caches.Open(DynamicCacheName)
		dyn.SetLimit(w.dynLimit)
		dyn.Put(key, resp)
	}
	return resp, true, nil
}

func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

type Message struct {
	Type string `json:"type"`
}

type MessageReply struct {
	Version string `json:"version,omitempty"`
}

// HandleMessage serves commands posted to the worker by its pages.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) (MessageReply, error) {
	switch msg.Type {
	case MessageSkipWaiting:
		return MessageReply{}, w.SkipWaiting(ctx)
	case MessageGetVersion:
		return MessageReply{Version: StaticCacheName}, nil
	default:
		return MessageReply{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}
