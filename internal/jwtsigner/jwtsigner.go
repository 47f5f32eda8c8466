package jwtsigner

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is stamped on trigger tokens and checked by the trigger guard.
const DefaultIssuer = "stockpulse-push"

var ErrEmptySecret = errors.New("jwtsigner: empty secret")

// Signer issues HS256 JWTs for callers of the trigger endpoints.
type Signer struct {
	secret []byte
	Issuer string
	now    func() time.Time
}

// New creates a signer over the shared trigger secret. An empty issuer falls
// back to DefaultIssuer.
func New(secret, iss string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if iss == "" {
		iss = DefaultIssuer
	}
	return &Signer{secret: []byte(secret), Issuer: iss, now: time.Now}, nil
}

// Sign issues a JWT for subject `sub` with TTL and extra claims.
func (s *Signer) Sign(sub string, ttl time.Duration, claims map[string]any) (string, error) {
	now := s.now()
	m := jwt.MapClaims{}
	for k, v := range claims {
		m[k] = v
	}
	m["iss"] = s.Issuer
	m["sub"] = sub
	m["iat"] = now.Unix()
	m["exp"] = now.Add(ttl).Unix()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, m)
	return t.SignedString(s.secret)
}
