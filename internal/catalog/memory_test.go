package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestService() Service {
	return Service{
		Name:   "wiki",
		Target: "https://wiki.internal",
		Groups: []string{"staff"},
	}
}

func TestServiceCreateAssignsUniqueIDs(t *testing.T) {
	store := NewInMemory().Services()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		svc := newTestService()
		if err := store.Create(ctx, &svc); err != nil {
			t.Fatalf("create: %v", err)
		}
		if svc.ID == "" {
			t.Fatal("empty id assigned")
		}
		if seen[svc.ID] {
			t.Fatalf("duplicate id %s", svc.ID)
		}
		seen[svc.ID] = true
	}
}

func TestServiceCreateRejectsEmptyGroups(t *testing.T) {
	store := NewInMemory().Services()
	ctx := context.Background()

	svc := newTestService()
	svc.Groups = nil
	if err := store.Create(ctx, &svc); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	svc = newTestService()
	svc.Groups = []string{"  ", ""}
	if err := store.Create(ctx, &svc); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank groups, got %v", err)
	}

	list, err := store.List(ctx, []string{"staff"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected nothing persisted, got %d records", len(list))
	}
}

func TestServiceListFiltersByGroupIntersection(t *testing.T) {
	store := NewInMemory().Services()
	ctx := context.Background()

	svc := newTestService()
	if err := store.Create(ctx, &svc); err != nil {
		t.Fatalf("create: %v", err)
	}

	visible, err := store.List(ctx, []string{"staff", "x"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible entry, got %d", len(visible))
	}

	hidden, err := store.List(ctx, []string{"guest"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hidden) != 0 {
		t.Fatalf("expected no visible entries, got %d", len(hidden))
	}
}

func TestServiceUpdateEmptyGroupsKeepsStoredSet(t *testing.T) {
	store := NewInMemory().Services()
	ctx := context.Background()

	svc := newTestService()
	if err := store.Create(ctx, &svc); err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "team wiki"
	updated, err := store.Update(ctx, svc.ID, ServicePatch{Name: &name, Groups: []string{}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "team wiki" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if len(updated.Groups) != 1 || updated.Groups[0] != "staff" {
		t.Fatalf("groups changed by empty patch: %v", updated.Groups)
	}
}

func TestServiceUpdateConcurrentDisjointFields(t *testing.T) {
	store := NewInMemory().Services()
	ctx := context.Background()

	svc := newTestService()
	if err := store.Create(ctx, &svc); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			name := "renamed"
			if _, err := store.Update(ctx, svc.ID, ServicePatch{Name: &name}); err != nil {
				t.Errorf("update name: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			target := "https://wiki.example.com"
			if _, err := store.Update(ctx, svc.ID, ServicePatch{Target: &target}); err != nil {
				t.Errorf("update target: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, svc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "renamed" || got.Target != "https://wiki.example.com" {
		t.Fatalf("lost update: name=%q target=%q", got.Name, got.Target)
	}
}

func TestServiceDeleteMissingLeavesStoreUnchanged(t *testing.T) {
	store := NewInMemory().Services()
	ctx := context.Background()

	svc := newTestService()
	if err := store.Create(ctx, &svc); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Delete(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, err := store.List(ctx, []string{"staff"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != svc.ID {
		t.Fatalf("store changed by failed delete: %v", list)
	}
}

func TestMessageListFiltersRecipientAndDismissed(t *testing.T) {
	store := NewInMemory().Messages()
	ctx := context.Background()

	for i, recipient := range []string{"u1", "u1", "u2"} {
		m := Message{
			Recipient: recipient,
			Severity:  SeverityInformation,
			Title:     fmt.Sprintf("note %d", i),
			Body:      "body",
		}
		if err := store.Create(ctx, &m); err != nil {
			t.Fatalf("create: %v", err)
		}
		if m.Dismissed {
			t.Fatal("new message created dismissed")
		}
		if i == 1 {
			dismissed := true
			if _, err := store.Update(ctx, m.ID, MessagePatch{Dismissed: &dismissed}); err != nil {
				t.Fatalf("dismiss: %v", err)
			}
		}
	}

	own, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(own) != 1 {
		t.Fatalf("expected 1 message for u1, got %d", len(own))
	}
	for _, m := range own {
		if m.Recipient != "u1" || m.Dismissed {
			t.Fatalf("leaked message %+v", m)
		}
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 non-dismissed messages, got %d", len(all))
	}
}

func TestMessageCreateRejectsUnknownSeverity(t *testing.T) {
	store := NewInMemory().Messages()
	m := Message{Recipient: "u1", Severity: "fatal", Title: "t", Body: "b"}
	if err := store.Create(context.Background(), &m); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFavoriteDuplicateRejected(t *testing.T) {
	store := NewInMemory().Favorites()
	ctx := context.Background()

	first := Favorite{Owner: "u1", URL: "https://a", Title: "a"}
	if err := store.Create(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := Favorite{Owner: "u1", URL: "https://a", Title: "a again"}
	if err := store.Create(ctx, &second); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	// Same URL under another owner is a different pair.
	other := Favorite{Owner: "u2", URL: "https://a", Title: "a"}
	if err := store.Create(ctx, &other); err != nil {
		t.Fatalf("create for other owner: %v", err)
	}

	list, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly 1 favorite for u1, got %d", len(list))
	}
}

func TestIdentityUpsertOverwritesMutableFields(t *testing.T) {
	store := NewInMemory().Identities()
	ctx := context.Background()

	if err := store.Upsert(ctx, Identity{Key: "u1", Email: "old@example.com", Groups: []string{"staff"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, Identity{Key: "u1", Email: "new@example.com", Groups: []string{"staff", "admin"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one cached identity, got %d", len(list))
	}
	got := list[0]
	if got.Email != "new@example.com" || len(got.Groups) != 2 {
		t.Fatalf("stale identity after upsert: %+v", got)
	}
}

func TestNormalizeGroups(t *testing.T) {
	got := NormalizeGroups([]string{" staff ", "", "admin", "staff"})
	if len(got) != 2 || got[0] != "staff" || got[1] != "admin" {
		t.Fatalf("NormalizeGroups = %v", got)
	}
}
