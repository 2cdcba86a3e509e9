package userstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements auth.Storage on PostgreSQL. Uniqueness of usernames and
// emails is enforced by unique indexes, so concurrent registrations for the
// same identifier resolve in the database rather than in application code.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed user store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

func (s *Store) CreateUser(ctx context.Context, user *auth.User, passwordHash []byte) error {
	var username *string
	if user.Username != "" {
		username = &user.Username
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, email_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, username, user.Email, passwordHash, user.EmailConfirmed, user.CreatedAt)
	if err != nil {
		if conflictErr := classifyConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.getUser(ctx, `WHERE LOWER(username) = LOWER($1)`, username)
}

func (s *Store) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string, confirmed bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email = $2, email_confirmed = $3, updated_at = NOW()
		WHERE id = $1
	`, id, email, confirmed)
	if err != nil {
		if conflictErr := classifyConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("failed to update email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetEmailConfirmed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email_confirmed = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark email confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *Store) GetPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var hash []byte
	err := s.pool.QueryRow(ctx, `
		SELECT password_hash FROM users WHERE id = $1
	`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load password hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, auth.ErrNoPassword
	}
	return hash, nil
}

func (s *Store) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, hash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *Store) GetUserByProvider(ctx context.Context, provider, providerUserID string) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.email_confirmed, u.created_at
		FROM users u
		JOIN provider_links pl ON pl.user_id = u.id
		WHERE pl.provider = $1 AND pl.provider_user_id = $2
	`, provider, providerUserID)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNoProviderLink
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user by provider: %w", err)
	}
	return user, nil
}

func (s *Store) StoreProviderLink(ctx context.Context, link auth.ProviderLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_links (user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, link.UserID, link.Provider, link.ProviderUserID, link.CreatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return auth.ErrProviderLinked
		}
		return fmt.Errorf("failed to store provider link: %w", err)
	}
	return nil
}

func (s *Store) RemoveProviderLink(ctx context.Context, userID uuid.UUID, provider string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM provider_links WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to remove provider link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNoProviderLink
	}
	return nil
}

func (s *Store) ListProviderLinks(ctx context.Context, userID uuid.UUID) ([]auth.ProviderLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, provider, provider_user_id, created_at
		FROM provider_links
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider links: %w", err)
	}
	defer rows.Close()

	var links []auth.ProviderLink
	for rows.Next() {
		var l auth.ProviderLink
		if err := rows.Scan(&l.UserID, &l.Provider, &l.ProviderUserID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider links: %w", err)
	}
	return links, nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, email_confirmed, created_at
		FROM users `+where, arg)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user     auth.User
		username *string
	)
	if err := row.Scan(&user.ID, &username, &user.Email, &user.EmailConfirmed, &user.CreatedAt); err != nil {
		return nil, err
	}
	if username != nil {
		user.Username = *username
	}
	return &user, nil
}

// classifyConflict maps a unique violation onto the domain conflict its
// constraint protects.
func classifyConflict(err error) error {
	if !pg.IsDuplicateKeyError(err) {
		return nil
	}
	switch {
	case strings.Contains(pg.ConstraintName(err), "username"):
		return auth.ErrUsernameTaken
	case strings.Contains(pg.ConstraintName(err), "email"):
		return auth.ErrEmailTaken
	default:
		return auth.ErrEmailTaken
	}
}

var _ auth.Storage = (*Store)(nil)
