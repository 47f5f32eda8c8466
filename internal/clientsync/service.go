package clientsync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval      = 30 * time.Second
	DefaultUnloadTimeout = 2 * time.Second
)

var ErrAlreadyStarted = errors.New("clientsync: service already started")

type Options struct {
	Storage Storage
	Events  EventSource
	Bus     *Bus
	// Interval between background sync ticks.
	Interval time.Duration
	// Deadline for the sync attempted on EventBeforeUnload.
	UnloadTimeout time.Duration
	// Initial connectivity.
	Online bool
	// Status reports the live market-data connection state recorded in
	// snapshots. Nil derives it from connectivity.
	Status func() ConnectionStatus
	Now    func() time.Time
	Logger *slog.Logger
}

// Service owns persistence of the watched-stock list for one client. It is
// constructed explicitly and driven by Start and Stop.
type Service struct {
	storage       Storage
	events        EventSource
	bus           *Bus
	interval      time.Duration
	unloadTimeout time.Duration
	status        func() ConnectionStatus
	now           func() time.Time
	log           *slog.Logger

	mu      sync.Mutex
	online  bool
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	detach  func()
	done    chan struct{}
}

func New(opts Options) *Service {
	s := &Service{
		storage:       opts.Storage,
		events:        opts.Events,
		bus:           opts.Bus,
		interval:      opts.Interval,
		unloadTimeout: opts.UnloadTimeout,
		status:        opts.Status,
		now:           opts.Now,
		log:           opts.Logger,
		online:        opts.Online,
		ctx:           context.Background(),
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	if s.bus == nil {
		s.bus = NewBus()
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.unloadTimeout <= 0 {
		s.unloadTimeout = DefaultUnloadTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Start attaches to the event source and starts the periodic sync.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = runCtx, cancel
	s.done = make(chan struct{})
	s.running = true
	if s.events != nil {
		s.detach = s.events.Attach(s.HandleEvent)
	}

	go s.loop(runCtx, s.done)
	s.log.Info("background sync started", "interval", s.interval)
	return nil
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.PerformBackgroundSync(ctx)
		}
	}
}

// Stop halts the ticker, detaches from the event source and clears the
// listener registry. Calling Stop on a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, detach, done := s.cancel, s.detach, s.done
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	cancel()
	<-done
	s.bus.Clear()
	s.log.Info("background sync stopped")
}

func (s *Service) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// SaveWatchedStocks persists stocks without their session-only fields and
// notifies the local listener for WatchedStocksKey. Failures are logged only.
func (s *Service) SaveWatchedStocks(ctx context.Context, stocks []WatchedStock) {
	env := Envelope{
		WatchedStocks: stripAll(stocks),
		LastSync:      s.now().UnixMilli(),
		Version:       EnvelopeVersion,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		s.log.Error("encode watched stocks failed", "error", err)
		return
	}
	if err := s.storage.SetItem(ctx, WatchedStocksKey, raw); err != nil {
		s.log.Error("save watched stocks failed", "error", err)
		return
	}
	s.bus.Publish(WatchedStocksKey, raw)
}

// LoadWatchedStocks returns the valid persisted stocks, or an empty slice when
// nothing usable is stored.
func (s *Service) LoadWatchedStocks(ctx context.Context) []WatchedStock {
	raw, err := s.storage.GetItem(ctx, WatchedStocksKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("load watched stocks failed", "error", err)
		}
		return []WatchedStock{}
	}
	return DecodeWatchedStocks(raw)
}

// PerformBackgroundSync writes a fresh snapshot of the watched stocks. It does
// nothing while offline or when no stocks are stored.
func (s *Service) PerformBackgroundSync(ctx context.Context) {
	if !s.Online() {
		return
	}
	stocks := s.LoadWatchedStocks(ctx)
	if len(stocks) == 0 {
		return
	}

	snap := Snapshot{
		Stocks:           stocks,
		LastUpdate:       s.now().UnixMilli(),
		ConnectionStatus: s.connectionStatus(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("encode sync snapshot failed", "error", err)
		return
	}
	if err := s.storage.SetItem(ctx, BackgroundSyncKey, raw); err != nil {
		s.log.Error("background sync failed", "error", err)
		return
	}
	s.log.Debug("background sync completed", "stocks", len(stocks))
}

// LoadSnapshot returns the last written snapshot.
func (s *Service) LoadSnapshot(ctx context.Context) (Snapshot, bool) {
	raw, err := s.storage.GetItem(ctx, BackgroundSyncKey)
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Service) connectionStatus() ConnectionStatus {
	if s.status != nil {
		return s.status()
	}
	if s.Online() {
		return StatusConnected
	}
	return StatusDisconnected
}

// HandleEvent reacts to one platform lifecycle event.
func (s *Service) HandleEvent(ev Event) {
	ctx := s.runContext()
	switch ev.Kind {
	case EventOnline:
		s.setOnline(true)
		s.PerformBackgroundSync(ctx)
	case EventOffline:
		s.setOnline(false)
	case EventVisibilityChange:
		s.PerformBackgroundSync(ctx)
	case EventBeforeUnload:
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.unloadTimeout)
		defer cancel()
		s.PerformBackgroundSync(uctx)
	case EventStorage:
		if ev.Key == WatchedStocksKey && ev.NewValue != nil {
			s.bus.Publish(WatchedStocksKey, ev.NewValue)
		}
	default:
		s.log.Debug("ignoring event", "kind", ev.Kind.String())
	}
}

func (s *Service) setOnline(v bool) {
	s.mu.Lock()
	s.online = v
	s.mu.Unlock()
	s.log.Info("connectivity changed", "online", v)
}

// AddStorageListener registers fn for key, replacing any previous listener.
func (s *Service) AddStorageListener(key string, fn Listener) {
	s.bus.Subscribe(key, fn)
}

func (s *Service) RemoveStorageListener(key string) {
	s.bus.Unsubscribe(key)
}
