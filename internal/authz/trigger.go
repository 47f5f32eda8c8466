// Package authz guards the trigger endpoints that fan notifications out.
package authz

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"stockpulse/internal/httpx"
	"stockpulse/internal/jwtsigner"
	"stockpulse/internal/observability/metrics"
	obsmw "stockpulse/internal/observability/middleware"

	"github.com/golang-jwt/jwt/v5"
)

// TriggerGuard accepts `Authorization: Bearer <token>` where the token is either
// the shared secret itself or an HS256 JWT signed with it.
type TriggerGuard struct {
	secret []byte
	issuer string
}

func NewTriggerGuard(secret, issuer string) *TriggerGuard {
	if issuer == "" {
		issuer = jwtsigner.DefaultIssuer
	}
	return &TriggerGuard{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (g *TriggerGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())
		traceID := obsmw.TraceIDFromContext(r.Context())

		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			metrics.TriggerAuthAttemptsTotal.WithLabelValues("none", "failure").Inc()
			slog.Warn("trigger auth missing bearer", "request_id", reqID, "trace_id", traceID)
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		tok := strings.TrimSpace(raw[len("Bearer "):])

		if subtle.ConstantTimeCompare([]byte(tok), g.secret) == 1 {
			metrics.TriggerAuthAttemptsTotal.WithLabelValues("secret", "success").Inc()
			slog.Info("trigger auth passed", "method", "secret", "request_id", reqID, "trace_id", traceID)
			next.ServeHTTP(w, r.WithContext(contextWithSubject(r.Context(), "secret")))
			return
		}

		sub, err := g.verify(tok)
		if err != nil {
			metrics.TriggerAuthAttemptsTotal.WithLabelValues("hmac", "failure").Inc()
			slog.Warn("trigger auth invalid token", "error", err, "request_id", reqID, "trace_id", traceID)
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		metrics.TriggerAuthAttemptsTotal.WithLabelValues("hmac", "success").Inc()
		slog.Info("trigger auth passed", "method", "hmac", "subject", sub, "request_id", reqID, "trace_id", traceID)
		next.ServeHTTP(w, r.WithContext(contextWithSubject(r.Context(), sub)))
	})
}

func (g *TriggerGuard) verify(tok string) (string, error) {
	token, err := jwt.Parse(tok, func(token *jwt.Token) (interface{}, error) {
		// HS* only
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
		}
		return g.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	if iss, _ := claims["iss"].(string); iss != "" && iss != g.issuer {
		return "", fmt.Errorf("issuer mismatch: %s", iss)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("no subject")
	}
	return sub, nil
}

type subjectKey struct{}

func contextWithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFrom returns the caller identity recorded by the guard.
func SubjectFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey{}).(string)
	return v, ok
}
