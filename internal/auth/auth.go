package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"homeserve/backend/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

// Identity is the verified caller: an opaque user id plus the role the
// identity provider vouches for. The core trusts the role for authorization.
type Identity struct {
	UserID string
	Role   domain.Role
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed bearer tokens carrying subject and role.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a raw bearer token into an Identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, ErrUnauthorized
	}
	c := claims{}
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthorized
	}
	if c.Subject == "" {
		return Identity{}, ErrUnauthorized
	}
	switch domain.Role(c.Role) {
	case domain.RoleClient, domain.RoleProvider, domain.RoleContractor, domain.RoleAdmin:
		return Identity{UserID: c.Subject, Role: domain.Role(c.Role)}, nil
	}
	return Identity{}, ErrUnauthorized
}

// Sign issues a token for the identity; used by tests and local tooling.
func Sign(secret, userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

type contextKey string

const identityKey contextKey = "identity"

// Middleware enforces a Bearer token on user-facing routes and stores the
// verified identity in the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			ident, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the verified caller if the request passed the
// auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}

// SchedulerHeader carries the shared secret the external scheduler
// authenticates batch invocations with.
const SchedulerHeader = "X-Scheduler-Token"

// SchedulerAuth guards batch endpoints: no user identity, just a
// constant-time shared-secret comparison.
func SchedulerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "scheduler auth disabled", http.StatusUnauthorized)
				return
			}
			got := r.Header.Get(SchedulerHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "invalid scheduler token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
