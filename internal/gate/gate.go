// Package gate resolves the authenticated identity behind each request and
// holds the authorization policy derived from its group claims. Identity is
// fully delegated: the provider issues the session credential, the gate
// verifies it and refreshes the identity cache. Any ambiguity fails closed.
package gate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"linkdesk.org/internal/catalog"
)

// SessionCookie is the cookie carrying the provider-issued session
// credential. A bearer Authorization header is accepted as an equivalent.
const SessionCookie = "linkdesk_session"

var (
	// ErrUnauthenticated covers a missing or invalid credential, and a
	// reachable provider that rejects it.
	ErrUnauthenticated = errors.New("gate: unauthenticated")
	// ErrUnavailable covers an unreachable or timed-out provider.
	ErrUnavailable = errors.New("gate: identity provider unavailable")
)

// Resolver produces the caller's identity or fails the request. Resolution
// is terminal: no handler proceeds without a resolved identity.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (catalog.Identity, error)
}

// claims is the provider-shape-independent view of a verified principal.
type claims struct {
	key    string
	email  string
	name   string
	groups []string
}

// admit maps verified claims onto an Identity and synchronously refreshes
// the cache. The write-per-request is deliberate: group membership stays
// fresh without a separate sync job, and authorization always sees the
// provider's latest groups.
func admit(ctx context.Context, cache catalog.IdentityStore, c claims) (catalog.Identity, error) {
	key := strings.TrimSpace(c.key)
	if key == "" {
		return catalog.Identity{}, ErrUnauthenticated
	}
	id := catalog.Identity{
		Key:         key,
		Email:       strings.TrimSpace(strings.ToLower(c.email)),
		DisplayName: strings.TrimSpace(c.name),
		Groups:      catalog.NormalizeGroups(c.groups),
	}
	id.AvatarURL = avatarURL(id.Email)
	if err := cache.Upsert(ctx, id); err != nil {
		return catalog.Identity{}, fmt.Errorf("gate: refresh identity cache: %w", err)
	}
	return id, nil
}

// avatarURL derives a stable gravatar-style URL from the email; empty when
// there is no email to hash.
func avatarURL(email string) string {
	if email == "" {
		return ""
	}
	sum := md5.Sum([]byte(email))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=mp"
}

// credential extracts the raw session credential from the request. Cookie
// first, bearer header as fallback.
func credential(r *http.Request) (string, error) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearer = "bearer "
	if header != "" && strings.HasPrefix(strings.ToLower(header), bearer) {
		if token := strings.TrimSpace(header[len(bearer):]); token != "" {
			return token, nil
		}
	}
	return "", ErrUnauthenticated
}

// splitGroups normalizes the provider's groups claim, which arrives either
// as a native list or as a single delimited string. The variability stops
// here.
func splitGroups(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return catalog.NormalizeGroups(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return catalog.NormalizeGroups(out)
	case string:
		return catalog.NormalizeGroups(splitDelimited(t))
	default:
		return nil
	}
}

func splitDelimited(s string) []string {
	if strings.Contains(s, ",") {
		return strings.Split(s, ",")
	}
	return strings.Fields(s)
}
