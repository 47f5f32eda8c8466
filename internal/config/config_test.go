package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"PUSH_ADDR", "PUSH_STORE", "DATABASE_URL", "PUSH_SENDER", "PUSH_DELIVERY_TIMEOUT",
		"PUSH_DELIVERY_CONCURRENCY", "VAPID_PUBLIC_KEY", "VAPID_PRIVATE_KEY", "CORS_ORIGINS",
		"PUSH_SUBSCRIPTION_MAX_IDLE", "PUSH_TRIGGER_SECRET",
	} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.Addr != ":8085" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.Store != StoreMemory || cfg.Sender != SenderHTTP {
		t.Fatalf("unexpected store/sender %q/%q", cfg.Store, cfg.Sender)
	}
	if cfg.DeliveryTimeout != 10*time.Second || cfg.DeliveryConcurrency != 8 {
		t.Fatalf("unexpected delivery settings %v/%d", cfg.DeliveryTimeout, cfg.DeliveryConcurrency)
	}
	if cfg.SubscriptionMaxIdle != 0 {
		t.Fatalf("idle sweep should be disabled by default, got %v", cfg.SubscriptionMaxIdle)
	}
	if cfg.VAPIDConfigured() {
		t.Fatalf("expected VAPID to be unconfigured")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PUSH_STORE", "SQLite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PUSH_SENDER", "webpush")
	t.Setenv("PUSH_DELIVERY_TIMEOUT", "3s")
	t.Setenv("PUSH_DELIVERY_CONCURRENCY", "16")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PUSH_SUBSCRIPTION_MAX_IDLE", "720h")
	t.Setenv("LOG_SQL", "true")

	cfg := Load()
	if cfg.Store != StoreSQLite || cfg.DatabaseURL == "" {
		t.Fatalf("expected sqlite with default dsn, got %q %q", cfg.Store, cfg.DatabaseURL)
	}
	if cfg.Sender != SenderWebPush {
		t.Fatalf("expected webpush sender, got %q", cfg.Sender)
	}
	if cfg.DeliveryTimeout != 3*time.Second || cfg.DeliveryConcurrency != 16 {
		t.Fatalf("unexpected delivery settings %v/%d", cfg.DeliveryTimeout, cfg.DeliveryConcurrency)
	}
	if !cfg.VAPIDConfigured() || !cfg.LogSQL {
		t.Fatalf("expected VAPID configured and sql logging on")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if cfg.SubscriptionMaxIdle != 720*time.Hour {
		t.Fatalf("unexpected max idle %v", cfg.SubscriptionMaxIdle)
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("PUSH_STORE", "redis")
	t.Setenv("PUSH_SENDER", "carrier-pigeon")
	t.Setenv("PUSH_DELIVERY_TIMEOUT", "soon")
	t.Setenv("PUSH_DELIVERY_CONCURRENCY", "-1")

	cfg := Load()
	if cfg.Store != StoreMemory || cfg.Sender != SenderHTTP {
		t.Fatalf("expected fallbacks, got %q/%q", cfg.Store, cfg.Sender)
	}
	if cfg.DeliveryTimeout != 10*time.Second || cfg.DeliveryConcurrency != 8 {
		t.Fatalf("expected default delivery settings, got %v/%d", cfg.DeliveryTimeout, cfg.DeliveryConcurrency)
	}
}
