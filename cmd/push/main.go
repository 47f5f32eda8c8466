package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockpulse/internal/config"
	"stockpulse/internal/observability/logging"
	"stockpulse/internal/observability/metrics"
	"stockpulse/internal/push"
	"stockpulse/internal/service"
	"stockpulse/internal/store"
	httptransport "stockpulse/internal/transport/http"
	"stockpulse/pkg/db"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win.
	envErr := godotenv.Load()

	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "push",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("load .env failed", "error", envErr)
	}

	metrics.MustRegister("push")
	logger.Info("starting service", "store", cfg.Store, "sender", cfg.Sender)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}

	var sender push.Sender
	switch cfg.Sender {
	case config.SenderWebPush:
		if !cfg.VAPIDConfigured() {
			logger.Error("webpush sender requires VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY")
			os.Exit(1)
		}
		sender = push.NewWebPushSender(cfg.VAPIDSubject, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.DeliveryTimeout)
	default:
		sender = push.NewHTTPSender(cfg.DeliveryTimeout)
	}
	if !cfg.VAPIDConfigured() {
		logger.Warn("VAPID keys not configured; subscriptions will be rejected")
	}

	dispatcher := push.NewDispatcher(st, sender,
		push.WithConcurrency(cfg.DeliveryConcurrency),
		push.WithLogger(logger),
	)
	svc := service.New(st, dispatcher, service.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
	})

	if cfg.SubscriptionMaxIdle > 0 {
		go sweep(ctx, svc, cfg.SubscriptionMaxIdle, cfg.SweepInterval)
	}

	router := httptransport.NewRouter(svc, httptransport.Options{
		CORSOrigins:         cfg.CORSOrigins,
		SubscribeRatePerMin: cfg.SubscribeRatePerMin,
		TriggerSecret:       cfg.TriggerSecret,
	})
	if cfg.TriggerSecret == "" {
		logger.Warn("PUSH_TRIGGER_SECRET not set; send endpoints are unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	slog.Info("push service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("push service stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store.Subscriptions, error) {
	if cfg.Store == config.StoreMemory {
		return store.NewMemory(), nil
	}
	gdb, err := db.OpenGorm(db.Config{Driver: cfg.Store, DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		return nil, err
	}
	st := store.NewGorm(gdb)
	if err := st.AutoMigrate(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func sweep(ctx context.Context, svc *service.Service, maxIdle, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.PruneIdle(ctx, maxIdle)
			if err != nil {
				slog.Warn("idle sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idle subscriptions pruned", "count", n, "max_idle", maxIdle)
			}
		}
	}
}
