package files

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists file metadata in PostgreSQL.
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

const fileColumns = `id, owner_id, app_identifier, filename, size, content_type, category, storage_path, status, created_at, updated_at`

func scanFile(row pgx.Row) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.OwnerID, &f.AppIdentifier, &f.Filename, &f.Size,
		&f.ContentType, &f.Category, &f.StoragePath, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create inserts the metadata record, normally with StatusUploading.
func (r *Repository) Create(ctx context.Context, f *File) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO files (id, owner_id, app_identifier, filename, size, content_type, category, storage_path, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		f.ID, f.OwnerID, f.AppIdentifier, f.Filename, f.Size, f.ContentType,
		f.Category, f.StoragePath, f.Status, now,
	)
	if err != nil {
		return storeErr("create file", err)
	}
	return nil
}

// SetStatus transitions the upload state.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE files SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return storeErr("set file status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches file metadata by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*File, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	f, err := scanFile(row)
	if err != nil {
		return nil, storeErr("get file", err)
	}
	return f, nil
}

// Delete removes the metadata record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete file", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns completed files for an app scope, newest first.
func (r *Repository) List(ctx context.Context, scope string, limit, offset int) ([]File, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE app_identifier = $1 AND status = 'completed'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		scope, limit, offset,
	)
	if err != nil {
		return nil, storeErr("list files", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, storeErr("scan file", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate files", err)
	}
	return out, nil
}
