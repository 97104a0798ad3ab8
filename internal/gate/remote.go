package gate

import (
	"context"
	"net/http"
	"strings"
	"time"

	"linkdesk.org/internal/catalog"
)

const defaultVerifyTimeout = 5 * time.Second

// RemoteResolver forwards the session credential to the identity provider's
// verification endpoint. The provider answers 200 with the principal
// described in Remote-* headers, or a 401/403 rejection. Calls carry a
// bounded timeout; on expiry the request fails with ErrUnavailable rather
// than hanging.
type RemoteResolver struct {
	verifyURL string
	cache     catalog.IdentityStore
	client    *http.Client
	timeout   time.Duration
}

// NewRemoteResolver builds a resolver for the forward-auth deployment mode.
func NewRemoteResolver(verifyURL string, cache catalog.IdentityStore, timeout time.Duration) *RemoteResolver {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &RemoteResolver{
		verifyURL: verifyURL,
		cache:     cache,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
	}
}

func (g *RemoteResolver) Resolve(ctx context.Context, r *http.Request) (catalog.Identity, error) {
	if _, err := credential(r); err != nil {
		return catalog.Identity{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.verifyURL, nil)
	if err != nil {
		return catalog.Identity{}, ErrUnavailable
	}
	if cookie := r.Header.Get("Cookie"); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return catalog.Identity{}, ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return catalog.Identity{}, ErrUnauthenticated
	default:
		return catalog.Identity{}, ErrUnavailable
	}

	key := strings.TrimSpace(resp.Header.Get("Remote-User"))
	if key == "" {
		// Provider answered OK but named no principal; fail closed.
		return catalog.Identity{}, ErrUnauthenticated
	}
	return admit(ctx, g.cache, claims{
		key:    key,
		email:  resp.Header.Get("Remote-Email"),
		name:   resp.Header.Get("Remote-Name"),
		groups: splitGroups(resp.Header.Get("Remote-Groups")),
	})
}
