// Package pg implements the catalog store on PostgreSQL. Group sets travel
// as jsonb; same-id updates serialize on row locks so concurrent partial
// updates never lose fields.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"linkdesk.org/internal/catalog"
	"linkdesk.org/internal/ids"
)

// Store implements catalog.Store over a pgx connection pool.
type Store struct {
	db *sql.DB
}

var _ catalog.Store = (*Store)(nil)

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (tests use this with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for the readiness probe.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Services() catalog.ServiceStore   { return &serviceStore{db: s.db} }
func (s *Store) Messages() catalog.MessageStore   { return &messageStore{db: s.db} }
func (s *Store) Favorites() catalog.FavoriteStore { return &favoriteStore{db: s.db} }
func (s *Store) Identities() catalog.IdentityStore {
	return &identityStore{db: s.db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Services ------------------------------------------------------------------

type serviceStore struct{ db *sql.DB }

const serviceColumns = `id, name, target, groups, image_key, image_width, image_height, display_width, display_height, created_at, updated_at`

func (s *serviceStore) Create(ctx context.Context, svc *catalog.Service) error {
	svc.Name = strings.TrimSpace(svc.Name)
	svc.Target = strings.TrimSpace(svc.Target)
	svc.Groups = catalog.NormalizeGroups(svc.Groups)
	if svc.Name == "" {
		return fmt.Errorf("%w: name is required", catalog.ErrInvalidInput)
	}
	if svc.Target == "" {
		return fmt.Errorf("%w: url is required", catalog.ErrInvalidInput)
	}
	if len(svc.Groups) == 0 {
		return fmt.Errorf("%w: at least one group is required", catalog.ErrInvalidInput)
	}

	svc.ID = ids.New()
	groups, _ := json.Marshal(svc.Groups)
	row := s.db.QueryRowContext(ctx, `
		insert into services(id, name, target, groups, image_key, image_width, image_height, display_width, display_height)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning created_at, updated_at
	`, svc.ID, svc.Name, svc.Target, groups, svc.ImageKey, svc.ImageWidth, svc.ImageHeight, svc.DisplayWidth, svc.DisplayHeight)
	return row.Scan(&svc.CreatedAt, &svc.UpdatedAt)
}

func (s *serviceStore) Get(ctx context.Context, id string) (catalog.Service, error) {
	row := s.db.QueryRowContext(ctx, `select `+serviceColumns+` from services where id=$1`, id)
	return scanService(row)
}

func (s *serviceStore) List(ctx context.Context, visibleTo []string) ([]catalog.Service, error) {
	rows, err := s.db.QueryContext(ctx, `select `+serviceColumns+` from services order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]catalog.Service, 0)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		if !catalog.GroupsIntersect(svc.Groups, visibleTo) {
			continue
		}
		res = append(res, svc)
	}
	return res, rows.Err()
}

func (s *serviceStore) Update(ctx context.Context, id string, patch catalog.ServicePatch) (catalog.Service, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Service{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `select `+serviceColumns+` from services where id=$1 for update`, id)
	svc, err := scanService(row)
	if err != nil {
		return catalog.Service{}, err
	}

	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		svc.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Target != nil && strings.TrimSpace(*patch.Target) != "" {
		svc.Target = strings.TrimSpace(*patch.Target)
	}
	if groups := catalog.NormalizeGroups(patch.Groups); len(groups) > 0 {
		svc.Groups = groups
	}
	if patch.Image != nil {
		svc.ImageKey = patch.Image.Key
		svc.ImageWidth = patch.Image.Width
		svc.ImageHeight = patch.Image.Height
		svc.DisplayWidth = patch.Image.DisplayWidth
		svc.DisplayHeight = patch.Image.DisplayHeight
	}

	groups, _ := json.Marshal(svc.Groups)
	if err := tx.QueryRowContext(ctx, `
		update services
		set name=$2, target=$3, groups=$4, image_key=$5, image_width=$6, image_height=$7, display_width=$8, display_height=$9, updated_at=now()
		where id=$1
		returning updated_at
	`, id, svc.Name, svc.Target, groups, svc.ImageKey, svc.ImageWidth, svc.ImageHeight, svc.DisplayWidth, svc.DisplayHeight).Scan(&svc.UpdatedAt); err != nil {
		return catalog.Service{}, err
	}
	if err := tx.Commit(); err != nil {
		return catalog.Service{}, err
	}
	return svc, nil
}

func (s *serviceStore) Delete(ctx context.Context, id string) (catalog.Service, error) {
	row := s.db.QueryRowContext(ctx, `delete from services where id=$1 returning `+serviceColumns, id)
	return scanService(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (catalog.Service, error) {
	var (
		svc    catalog.Service
		groups []byte
	)
	err := row.Scan(&svc.ID, &svc.Name, &svc.Target, &groups, &svc.ImageKey,
		&svc.ImageWidth, &svc.ImageHeight, &svc.DisplayWidth, &svc.DisplayHeight,
		&svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Service{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Service{}, err
	}
	_ = json.Unmarshal(groups, &svc.Groups)
	return svc, nil
}

// Messages ------------------------------------------------------------------

type messageStore struct{ db *sql.DB }

const messageColumns = `id, recipient, severity, title, body, dismissed, created_at`

func (s *messageStore) Create(ctx context.Context, m *catalog.Message) error {
	m.Recipient = strings.TrimSpace(m.Recipient)
	m.Title = strings.TrimSpace(m.Title)
	if m.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", catalog.ErrInvalidInput)
	}
	if !m.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", catalog.ErrInvalidInput, m.Severity)
	}
	if m.Title == "" {
		return fmt.Errorf("%w: title is required", catalog.ErrInvalidInput)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", catalog.ErrInvalidInput)
	}

	m.ID = ids.New()
	m.Dismissed = false
	row := s.db.QueryRowContext(ctx, `
		insert into messages(id, recipient, severity, title, body)
		values ($1,$2,$3,$4,$5)
		returning created_at
	`, m.ID, m.Recipient, string(m.Severity), m.Title, m.Body)
	return row.Scan(&m.CreatedAt)
}

func (s *messageStore) List(ctx context.Context, recipient string) ([]catalog.Message, error) {
	return s.list(ctx, `select `+messageColumns+` from messages where recipient=$1 and not dismissed order by id asc`, recipient)
}

func (s *messageStore) ListAll(ctx context.Context) ([]catalog.Message, error) {
	return s.list(ctx, `select `+messageColumns+` from messages where not dismissed order by id asc`)
}

func (s *messageStore) list(ctx context.Context, query string, args ...any) ([]catalog.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]catalog.Message, 0)
	for rows.Next() {
		var m catalog.Message
		if err := rows.Scan(&m.ID, &m.Recipient, &m.Severity, &m.Title, &m.Body, &m.Dismissed, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *messageStore) Update(ctx context.Context, id string, patch catalog.MessagePatch) (catalog.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var m catalog.Message
	err = tx.QueryRowContext(ctx, `select `+messageColumns+` from messages where id=$1 for update`, id).
		Scan(&m.ID, &m.Recipient, &m.Severity, &m.Title, &m.Body, &m.Dismissed, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Message{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Message{}, err
	}

	if patch.Severity != nil {
		if !patch.Severity.Valid() {
			return catalog.Message{}, fmt.Errorf("%w: unknown severity %q", catalog.ErrInvalidInput, *patch.Severity)
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

	if _, err := tx.ExecContext(ctx, `
		update messages set severity=$2, title=$3, body=$4, dismissed=$5 where id=$1
	`, id, string(m.Severity), m.Title, m.Body, m.Dismissed); err != nil {
		return catalog.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return catalog.Message{}, err
	}
	return m, nil
}

func (s *messageStore) Delete(ctx context.Context, id string) (catalog.Message, error) {
	var m catalog.Message
	err := s.db.QueryRowContext(ctx, `delete from messages where id=$1 returning `+messageColumns, id).
		Scan(&m.ID, &m.Recipient, &m.Severity, &m.Title, &m.Body, &m.Dismissed, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Message{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Message{}, err
	}
	return m, nil
}

// Favorites -----------------------------------------------------------------

type favoriteStore struct{ db *sql.DB }

func (s *favoriteStore) Create(ctx context.Context, f *catalog.Favorite) error {
	f.URL = strings.TrimSpace(f.URL)
	f.Title = strings.TrimSpace(f.Title)
	if f.Owner == "" {
		return fmt.Errorf("%w: owner is required", catalog.ErrInvalidInput)
	}
	if f.URL == "" {
		return fmt.Errorf("%w: url is required", catalog.ErrInvalidInput)
	}
	if f.Title == "" {
		return fmt.Errorf("%w: title is required", catalog.ErrInvalidInput)
	}

	err := s.db.QueryRowContext(ctx, `
		insert into favorites(owner_key, url, title)
		values ($1,$2,$3)
		returning created_at
	`, f.Owner, f.URL, f.Title).Scan(&f.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: favorite %q", catalog.ErrAlreadyExists, f.URL)
	}
	return err
}

func (s *favoriteStore) List(ctx context.Context, owner string) ([]catalog.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		select owner_key, url, title, created_at from favorites where owner_key=$1 order by url asc
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]catalog.Favorite, 0)
	for rows.Next() {
		var f catalog.Favorite
		if err := rows.Scan(&f.Owner, &f.URL, &f.Title, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (s *favoriteStore) Delete(ctx context.Context, owner, url string) (catalog.Favorite, error) {
	var f catalog.Favorite
	err := s.db.QueryRowContext(ctx, `
		delete from favorites where owner_key=$1 and url=$2
		returning owner_key, url, title, created_at
	`, owner, url).Scan(&f.Owner, &f.URL, &f.Title, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Favorite{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Favorite{}, err
	}
	return f, nil
}

// Identities ----------------------------------------------------------------

type identityStore struct{ db *sql.DB }

func (s *identityStore) Upsert(ctx context.Context, id catalog.Identity) error {
	if strings.TrimSpace(id.Key) == "" {
		return fmt.Errorf("%w: identity key is required", catalog.ErrInvalidInput)
	}
	groups, _ := json.Marshal(catalog.NormalizeGroups(id.Groups))
	_, err := s.db.ExecContext(ctx, `
		insert into identities(key, email, display_name, avatar_url, groups, updated_at)
		values ($1,$2,$3,$4,$5,now())
		on conflict (key) do update
		set email=excluded.email, display_name=excluded.display_name,
		    avatar_url=excluded.avatar_url, groups=excluded.groups, updated_at=now()
	`, id.Key, id.Email, id.DisplayName, id.AvatarURL, groups)
	return err
}

func (s *identityStore) List(ctx context.Context) ([]catalog.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select key, email, display_name, avatar_url, groups, updated_at from identities order by key asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]catalog.Identity, 0)
	for rows.Next() {
		var (
			id     catalog.Identity
			groups []byte
		)
		if err := rows.Scan(&id.Key, &id.Email, &id.DisplayName, &id.AvatarURL, &groups, &id.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(groups, &id.Groups)
		res = append(res, id)
	}
	return res, rows.Err()
}
