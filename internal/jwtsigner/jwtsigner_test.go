package jwtsigner

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignHS256(t *testing.T) {
	s, err := New("s3cret", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok, err := s.Sign("cron", time.Minute, map[string]any{"scope": "send"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parsed, err := jwt.Parse(tok, func(token *jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "cron" || claims["iss"] != DefaultIssuer || claims["scope"] != "send" {
		t.Fatalf("unexpected claims %v", claims)
	}
}

func TestSignExpired(t *testing.T) {
	s, _ := New("s3cret", "ops")
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := s.Sign("cron", time.Minute, nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = jwt.Parse(tok, func(token *jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	})
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}
