package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func storeErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

const userColumns = `id, subject, email, display_name, avatar_url, is_superuser, is_active, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u           User
		displayName *string
		avatarURL   *string
	)
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &displayName, &avatarURL,
		&u.IsSuperuser, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		u.DisplayName = *displayName
	}
	if avatarURL != nil {
		u.AvatarURL = *avatarURL
	}
	return &u, nil
}

// GetByID fetches a user by local ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}

// GetBySubject fetches a user by provider subject.
func (r *Repository) GetBySubject(ctx context.Context, subject string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE subject = $1`, subject)
	u, err := scanUser(row)
	if err != nil {
		return nil, storeErr("get user by subject", err)
	}
	return u, nil
}

// Create inserts a new user record.
func (r *Repository) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.IsActive = true
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, subject, email, display_name, avatar_url, is_superuser, is_active, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, TRUE, $7, $8, $9)`,
		u.ID, u.Subject, u.Email, u.DisplayName, u.AvatarURL, u.IsSuperuser, u.CreatedAt, u.UpdatedAt, u.LastLoginAt,
	)
	if err != nil {
		return storeErr("create user", err)
	}
	return nil
}

// UpdateProfile refreshes profile fields from the provider and records the
// login time.
func (r *Repository) UpdateProfile(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.UpdatedAt = now
	u.LastLoginAt = &now
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2,
		    display_name = NULLIF($3, ''),
		    avatar_url = NULLIF($4, ''),
		    updated_at = $5,
		    last_login_at = $5
		WHERE id = $1`,
		u.ID, u.Email, u.DisplayName, u.AvatarURL, now,
	)
	if err != nil {
		return storeErr("update profile", err)
	}
	return nil
}

// List returns users ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}
	return users, nil
}

// Exists reports whether an active user with the given ID exists.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND is_active)`, id,
	).Scan(&exists)
	if err != nil {
		return false, storeErr("user exists", err)
	}
	return exists, nil
}
