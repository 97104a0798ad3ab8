package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"linkdesk.org/internal/catalog"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func verify(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceCreateInsertsRow(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`insert into services`).
		WithArgs(sqlmock.AnyArg(), "wiki", "https://wiki", []byte(`["staff"]`), "", 0, 0, 0, 0).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	svc := catalog.Service{Name: " wiki ", Target: "https://wiki", Groups: []string{"staff", "staff"}}
	if err := store.Services().Create(context.Background(), &svc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if svc.ID == "" {
		t.Fatal("no id assigned")
	}
	if svc.Name != "wiki" {
		t.Fatalf("name not trimmed: %q", svc.Name)
	}
	if !svc.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v", svc.CreatedAt)
	}
	verify(t, mock)
}

func TestServiceCreateValidatesBeforeSQL(t *testing.T) {
	store, mock := newMock(t)

	svc := catalog.Service{Name: "wiki", Target: "https://wiki"}
	if err := store.Services().Create(context.Background(), &svc); !errors.Is(err, catalog.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	// No expectations registered: validation must not reach the database.
	verify(t, mock)
}

func TestServiceGetNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`select .+ from services where id=\$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Services().Get(context.Background(), "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	verify(t, mock)
}

func TestServiceListFiltersInStore(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	cols := []string{"id", "name", "target", "groups", "image_key", "image_width", "image_height", "display_width", "display_height", "created_at", "updated_at"}
	mock.ExpectQuery(`select .+ from services order by id asc`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "wiki", "https://wiki", []byte(`["staff"]`), "", 0, 0, 0, 0, now, now).
			AddRow("s2", "hr", "https://hr", []byte(`["hr"]`), "", 0, 0, 0, 0, now, now))

	got, err := store.Services().List(context.Background(), []string{"staff"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("list = %v", got)
	}
	verify(t, mock)
}

func TestServiceUpdateMergesUnderRowLock(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	cols := []string{"id", "name", "target", "groups", "image_key", "image_width", "image_height", "display_width", "display_height", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from services where id=\$1 for update`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "wiki", "https://wiki", []byte(`["staff"]`), "img", 200, 100, 100, 50, now, now))
	mock.ExpectQuery(`update services`).
		WithArgs("s1", "team wiki", "https://wiki", []byte(`["staff"]`), "img", 200, 100, 100, 50).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	name := "team wiki"
	svc, err := store.Services().Update(context.Background(), "s1", catalog.ServicePatch{Name: &name, Groups: []string{}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if svc.Name != "team wiki" || len(svc.Groups) != 1 || svc.Groups[0] != "staff" {
		t.Fatalf("merged record = %+v", svc)
	}
	verify(t, mock)
}

func TestFavoriteCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`insert into favorites(owner_key, url, title)`)).
		WithArgs("u1", "https://a", "a").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	f := catalog.Favorite{Owner: "u1", URL: "https://a", Title: "a"}
	if err := store.Favorites().Create(context.Background(), &f); !errors.Is(err, catalog.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	verify(t, mock)
}

func TestFavoriteDeleteNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`delete from favorites where owner_key=\$1 and url=\$2`).
		WithArgs("u1", "https://a").
		WillReturnRows(sqlmock.NewRows([]string{"owner_key"}))

	if _, err := store.Favorites().Delete(context.Background(), "u1", "https://a"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	verify(t, mock)
}

func TestMessageDeleteReturnsRow(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`delete from messages where id=\$1`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient", "severity", "title", "body", "dismissed", "created_at"}).
			AddRow("m1", "u1", "warning", "t", "b", false, now))

	m, err := store.Messages().Delete(context.Background(), "m1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.Recipient != "u1" || m.Severity != catalog.SeverityWarning {
		t.Fatalf("deleted message = %+v", m)
	}
	verify(t, mock)
}

func TestIdentityUpsert(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(`insert into identities`).
		WithArgs("u1", "u1@example.com", "User One", "https://avatar", []byte(`["staff"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Identities().Upsert(context.Background(), catalog.Identity{
		Key:         "u1",
		Email:       "u1@example.com",
		DisplayName: "User One",
		AvatarURL:   "https://avatar",
		Groups:      []string{"staff", "staff"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	verify(t, mock)
}

func TestIdentityUpsertRequiresKey(t *testing.T) {
	store, mock := newMock(t)
	if err := store.Identities().Upsert(context.Background(), catalog.Identity{Key: "  "}); !errors.Is(err, catalog.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	verify(t, mock)
}
