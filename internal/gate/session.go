package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkdesk.org/internal/catalog"
)

// sessionClaims mirrors the provider's session token payload. Groups is
// left untyped because providers differ on its shape.
type sessionClaims struct {
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Groups any    `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// SessionResolver verifies the session credential locally as an HS256 JWT
// signed with a secret shared with the identity provider.
type SessionResolver struct {
	secret []byte
	cache  catalog.IdentityStore
}

// NewSessionResolver builds a resolver for the shared-secret deployment
// mode.
func NewSessionResolver(secret string, cache catalog.IdentityStore) (*SessionResolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("gate: session secret is required")
	}
	return &SessionResolver{secret: []byte(secret), cache: cache}, nil
}

func (g *SessionResolver) Resolve(ctx context.Context, r *http.Request) (catalog.Identity, error) {
	token, err := credential(r)
	if err != nil {
		return catalog.Identity{}, err
	}
	var sc sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &sc, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthenticated
		}
		return g.secret, nil
	})
	if err != nil || !parsed.Valid {
		return catalog.Identity{}, ErrUnauthenticated
	}
	if sc.ExpiresAt == nil || time.Now().After(sc.ExpiresAt.Time) {
		return catalog.Identity{}, ErrUnauthenticated
	}
	return admit(ctx, g.cache, claims{
		key:    sc.Subject,
		email:  sc.Email,
		name:   sc.Name,
		groups: splitGroups(sc.Groups),
	})
}
