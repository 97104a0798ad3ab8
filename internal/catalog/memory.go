package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"linkdesk.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Each record
// family has its own lock; an update's read-modify-write runs entirely
// inside the critical section, so concurrent partial updates on the same id
// never lose fields.
type InMemory struct {
	servicesMu sync.Mutex
	services   map[string]*Service

	messagesMu sync.Mutex
	messages   map[string]*Message

	favoritesMu sync.Mutex
	favorites   map[string]*Favorite // key: owner + "\x00" + url

	identitiesMu sync.Mutex
	identities   map[string]*Identity

	now func() time.Time
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		services:   make(map[string]*Service),
		messages:   make(map[string]*Message),
		favorites:  make(map[string]*Favorite),
		identities: make(map[string]*Identity),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) Services() ServiceStore   { return (*memServices)(s) }
func (s *InMemory) Messages() MessageStore   { return (*memMessages)(s) }
func (s *InMemory) Favorites() FavoriteStore { return (*memFavorites)(s) }
func (s *InMemory) Identities() IdentityStore {
	return (*memIdentities)(s)
}

// Services -----------------------------------------------------------------

type memServices InMemory

func (s *memServices) Create(ctx context.Context, svc *Service) error {
	svc.Name = strings.TrimSpace(svc.Name)
	svc.Target = strings.TrimSpace(svc.Target)
	svc.Groups = NormalizeGroups(svc.Groups)
	if svc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if svc.Target == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(svc.Groups) == 0 {
		return fmt.Errorf("%w: at least one group is required", ErrInvalidInput)
	}

	s.servicesMu.Lock()
	defer s.servicesMu.Unlock()

	svc.ID = ids.New()
	now := s.now()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	cp := *svc
	s.services[svc.ID] = &cp
	return nil
}

func (s *memServices) Get(ctx context.Context, id string) (Service, error) {
	s.servicesMu.Lock()
	defer s.servicesMu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return Service{}, ErrNotFound
	}
	return cloneService(svc), nil
}

func (s *memServices) List(ctx context.Context, visibleTo []string) ([]Service, error) {
	s.servicesMu.Lock()
	defer s.servicesMu.Unlock()
	res := make([]Service, 0, len(s.services))
	for _, svc := range s.services {
		if !GroupsIntersect(svc.Groups, visibleTo) {
			continue
		}
		res = append(res, cloneService(svc))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memServices) Update(ctx context.Context, id string, patch ServicePatch) (Service, error) {
	s.servicesMu.Lock()
	defer s.servicesMu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return Service{}, ErrNotFound
	}
	applyServicePatch(svc, patch)
	svc.UpdatedAt = s.now()
	return cloneService(svc), nil
}

func (s *memServices) Delete(ctx context.Context, id string) (Service, error) {
	s.servicesMu.Lock()
	defer s.servicesMu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return Service{}, ErrNotFound
	}
	delete(s.services, id)
	return cloneService(svc), nil
}

// applyServicePatch merges present fields only. Empty patch groups keep the
// stored set: an entry with no allowed group would be unreachable.
func applyServicePatch(svc *Service, patch ServicePatch) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		svc.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Target != nil && strings.TrimSpace(*patch.Target) != "" {
		svc.Target = strings.TrimSpace(*patch.Target)
	}
	if groups := NormalizeGroups(patch.Groups); len(groups) > 0 {
		svc.Groups = groups
	}
	if patch.Image != nil {
		svc.ImageKey = patch.Image.Key
		svc.ImageWidth = patch.Image.Width
		svc.ImageHeight = patch.Image.Height
		svc.DisplayWidth = patch.Image.DisplayWidth
		svc.DisplayHeight = patch.Image.DisplayHeight
	}
}

func cloneService(svc *Service) Service {
	out := *svc
	out.Groups = append([]string(nil), svc.Groups...)
	return out
}

// Messages -----------------------------------------------------------------

type memMessages InMemory

func (s *memMessages) Create(ctx context.Context, m *Message) error {
	m.Recipient = strings.TrimSpace(m.Recipient)
	m.Title = strings.TrimSpace(m.Title)
	if m.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if !m.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, m.Severity)
	}
	if m.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidInput)
	}

	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	m.ID = ids.New()
	m.CreatedAt = s.now()
	m.Dismissed = false
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *memMessages) List(ctx context.Context, recipient string) ([]Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	res := make([]Message, 0)
	for _, m := range s.messages {
		if m.Dismissed || m.Recipient != recipient {
			continue
		}
		res = append(res, *m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memMessages) ListAll(ctx context.Context) ([]Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	res := make([]Message, 0)
	for _, m := range s.messages {
		if m.Dismissed {
			continue
		}
		res = append(res, *m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memMessages) Update(ctx context.Context, id string, patch MessagePatch) (Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if patch.Severity != nil {
		if !patch.Severity.Valid() {
			return Message{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, *patch.Severity)
		}
		m.Severity = *patch.Severity
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
		m.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Body != nil && strings.TrimSpace(*patch.Body) != "" {
		m.Body = *patch.Body
	}
	if patch.Dismissed != nil {
		m.Dismissed = *patch.Dismissed
	}
	return *m, nil
}

func (s *memMessages) Delete(ctx context.Context, id string) (Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	delete(s.messages, id)
	return *m, nil
}

// Favorites ----------------------------------------------------------------

type memFavorites InMemory

func favoriteKey(owner, url string) string { return owner + "\x00" + url }

func (s *memFavorites) Create(ctx context.Context, f *Favorite) error {
	f.URL = strings.TrimSpace(f.URL)
	f.Title = strings.TrimSpace(f.Title)
	if f.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if f.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if f.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	s.favoritesMu.Lock()
	defer s.favoritesMu.Unlock()

	key := favoriteKey(f.Owner, f.URL)
	if _, ok := s.favorites[key]; ok {
		return fmt.Errorf("%w: favorite %q", ErrAlreadyExists, f.URL)
	}
	f.CreatedAt = s.now()
	cp := *f
	s.favorites[key] = &cp
	return nil
}

func (s *memFavorites) List(ctx context.Context, owner string) ([]Favorite, error) {
	s.favoritesMu.Lock()
	defer s.favoritesMu.Unlock()
	res := make([]Favorite, 0)
	for _, f := range s.favorites {
		if f.Owner != owner {
			continue
		}
		res = append(res, *f)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].URL < res[j].URL })
	return res, nil
}

func (s *memFavorites) Delete(ctx context.Context, owner, url string) (Favorite, error) {
	s.favoritesMu.Lock()
	defer s.favoritesMu.Unlock()
	key := favoriteKey(owner, url)
	f, ok := s.favorites[key]
	if !ok {
		return Favorite{}, ErrNotFound
	}
	delete(s.favorites, key)
	return *f, nil
}

// Identities ---------------------------------------------------------------

type memIdentities InMemory

func (s *memIdentities) Upsert(ctx context.Context, id Identity) error {
	if strings.TrimSpace(id.Key) == "" {
		return fmt.Errorf("%w: identity key is required", ErrInvalidInput)
	}
	s.identitiesMu.Lock()
	defer s.identitiesMu.Unlock()
	id.Groups = NormalizeGroups(id.Groups)
	id.UpdatedAt = s.now()
	cp := id
	s.identities[id.Key] = &cp
	return nil
}

func (s *memIdentities) List(ctx context.Context) ([]Identity, error) {
	s.identitiesMu.Lock()
	defer s.identitiesMu.Unlock()
	res := make([]Identity, 0, len(s.identities))
	for _, id := range s.identities {
		cp := *id
		cp.Groups = append([]string(nil), id.Groups...)
		res = append(res, cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}
