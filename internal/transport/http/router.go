package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"stockpulse/internal/authz"
	"stockpulse/internal/dto"
	"stockpulse/internal/httpx"
	"stockpulse/internal/observability/middleware"
	"stockpulse/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	CodeInvalidSubscription = "INVALID_SUBSCRIPTION"
	CodeNotConfigured       = "VAPID_NOT_CONFIGURED"
	CodeInvalidNotification = "INVALID_NOTIFICATION_DATA"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternal            = "INTERNAL_ERROR"
)

type Options struct {
	CORSOrigins []string
	// Per-IP limit on POST /api/push/subscribe; zero disables it.
	SubscribeRatePerMin int
	// Empty leaves the send endpoints open.
	TriggerSecret string
	// Budget for a whole request including fan-out.
	RequestTimeout time.Duration
}

func NewRouter(svc *service.Service, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderRequestID, middleware.HeaderTraceID},
		ExposedHeaders: []string{middleware.HeaderRequestID, middleware.HeaderTraceID},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{svc: svc}
	r.Route("/api/push", func(r chi.Router) {
		r.Get("/subscribe", h.listSubscriptions)
		r.Group(func(r chi.Router) {
			if opts.SubscribeRatePerMin > 0 {
				r.Use(httprate.LimitByIP(opts.SubscribeRatePerMin, time.Minute))
			}
			r.Post("/subscribe", h.subscribe)
		})

		r.Group(func(r chi.Router) {
			if opts.TriggerSecret != "" {
				r.Use(authz.NewTriggerGuard(opts.TriggerSecret, "").Middleware)
			}
			r.Post("/send", h.send)
			r.Get("/send", h.sendTest)
		})
	})
	return r
}

type handlers struct {
	svc *service.Service
}

func (h *handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	traceID := middleware.TraceIDFromContext(r.Context())

	var req dto.SubscribeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slog.Warn("subscribe decode failed", "error", err, "request_id", reqID, "trace_id", traceID)
		httpx.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	if err := h.svc.Subscribe(r.Context(), req); err != nil {
		slog.Warn("subscribe failed", "error", err, "request_id", reqID, "trace_id", traceID)
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.SubscribeResponse{Success: true, Message: "Subscription saved successfully"})
}

func (h *handlers) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListSubscriptions(r.Context())
	if err != nil {
		slog.Error("list subscriptions failed", "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	traceID := middleware.TraceIDFromContext(r.Context())

	var req dto.SendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slog.Warn("send decode failed", "error", err, "request_id", reqID, "trace_id", traceID)
		httpx.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	res, err := h.svc.Send(r.Context(), req)
	if err != nil {
		slog.Warn("send failed", "error", err, "request_id", reqID, "trace_id", traceID)
		writeServiceError(w, err)
		return
	}
	slog.Info("send completed", "sent", res.Sent, "failed", res.Failed, "request_id", reqID, "trace_id", traceID)
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) sendTest(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SendTest(r.Context())
	if err != nil {
		slog.Warn("test send failed", "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSubscription):
		httpx.WriteError(w, http.StatusBadRequest, CodeInvalidSubscription, "Invalid subscription data")
	case errors.Is(err, service.ErrNotConfigured):
		httpx.WriteError(w, http.StatusInternalServerError, CodeNotConfigured, "Push notifications are not configured")
	case errors.Is(err, service.ErrInvalidNotification):
		httpx.WriteError(w, http.StatusBadRequest, CodeInvalidNotification, "Notification title and body are required")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
