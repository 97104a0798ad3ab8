package catalog

import "context"

// Store describes persistence operations for the four record families.
// Handlers never reach into storage directly; all mutation goes through
// these entry points.
type Store interface {
	Services() ServiceStore
	Messages() MessageStore
	Favorites() FavoriteStore
	Identities() IdentityStore
}

// ServicePatch is a partial update of a Service. Nil fields keep their
// stored values. An empty Groups slice is treated as absent: clearing the
// group set would make the entry unreachable, so updates never do it.
type ServicePatch struct {
	Name   *string
	Target *string
	Groups []string
	Image  *ImagePatch
}

// ImagePatch replaces the stored image reference and its dimensions.
type ImagePatch struct {
	Key           string
	Width         int
	Height        int
	DisplayWidth  int
	DisplayHeight int
}

// MessagePatch is a partial update of a Message, including dismissal.
type MessagePatch struct {
	Severity  *Severity
	Title     *string
	Body      *string
	Dismissed *bool
}

// ServiceStore manages catalog entries.
type ServiceStore interface {
	// Create validates name/target/groups, assigns an id and timestamps.
	Create(ctx context.Context, svc *Service) error
	Get(ctx context.Context, id string) (Service, error)
	// List returns entries whose group set intersects visibleTo. The
	// filter runs in the store so callers never see entries outside
	// their groups; an empty visibleTo matches nothing.
	List(ctx context.Context, visibleTo []string) ([]Service, error)
	// Update applies a partial merge and returns the merged record.
	Update(ctx context.Context, id string, patch ServicePatch) (Service, error)
	// Delete returns the removed record so the caller can release the blob.
	Delete(ctx context.Context, id string) (Service, error)
}

// MessageStore manages notices.
type MessageStore interface {
	Create(ctx context.Context, m *Message) error
	// List returns the recipient's non-dismissed messages.
	List(ctx context.Context, recipient string) ([]Message, error)
	// ListAll returns every non-dismissed message.
	ListAll(ctx context.Context) ([]Message, error)
	Update(ctx context.Context, id string, patch MessagePatch) (Message, error)
	Delete(ctx context.Context, id string) (Message, error)
}

// FavoriteStore manages user-private saved links.
type FavoriteStore interface {
	// Create rejects a duplicate (owner, url) pair with ErrAlreadyExists.
	Create(ctx context.Context, f *Favorite) error
	List(ctx context.Context, owner string) ([]Favorite, error)
	Delete(ctx context.Context, owner, url string) (Favorite, error)
}

// IdentityStore is the identity cache. Only the authentication gate writes
// to it; every successful resolve refreshes the stored profile.
type IdentityStore interface {
	Upsert(ctx context.Context, id Identity) error
	List(ctx context.Context) ([]Identity, error)
}
