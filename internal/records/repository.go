package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists records in PostgreSQL with a JSONB payload column.
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

const recordColumns = `id, app_identifier, collection_type, owner_id, payload, title, description, is_published, version, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec         Record
		title       *string
		description *string
	)
	err := row.Scan(&rec.ID, &rec.AppIdentifier, &rec.CollectionType, &rec.OwnerID,
		&rec.Payload, &title, &description, &rec.IsPublished, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if title != nil {
		rec.Title = *title
	}
	if description != nil {
		rec.Description = *description
	}
	return &rec, nil
}

// Create inserts a record.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Version = 1
	_, err := r.pool.Exec(ctx, `
		INSERT INTO records (id, app_identifier, collection_type, owner_id, payload, title, description, is_published, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, 1, $9, $9)`,
		rec.ID, rec.AppIdentifier, rec.CollectionType, rec.OwnerID, rec.Payload,
		rec.Title, rec.Description, rec.IsPublished, now,
	)
	if err != nil {
		return storeErr("create record", err)
	}
	return nil
}

// Get fetches a record by ID. Soft-deleted records are invisible.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 AND NOT is_deleted`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, storeErr("get record", err)
	}
	return rec, nil
}

// Update replaces payload and metadata, bumping the version.
func (r *Repository) Update(ctx context.Context, rec *Record) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE records
		SET payload = $2,
		    title = NULLIF($3, ''),
		    description = NULLIF($4, ''),
		    is_published = $5,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+recordColumns,
		rec.ID, rec.Payload, rec.Title, rec.Description, rec.IsPublished,
	)
	updated, err := scanRecord(row)
	if err != nil {
		return nil, storeErr("update record", err)
	}
	return updated, nil
}

// Delete soft-deletes a record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE records SET is_deleted = TRUE, updated_at = now() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return storeErr("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany soft-deletes the given records and reports how many were
// affected.
func (r *Repository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE records SET is_deleted = TRUE, updated_at = now() WHERE id = ANY($1) AND NOT is_deleted`, ids)
	if err != nil {
		return 0, storeErr("delete records", err)
	}
	return int(tag.RowsAffected()), nil
}

// List returns a page of records matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) (Page, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM records
		WHERE app_identifier = $1
		  AND NOT is_deleted
		  AND ($2 = '' OR collection_type = $2)
		  AND ($3::uuid IS NULL OR owner_id = $3)`,
		filter.AppIdentifier, filter.CollectionType, filter.OwnerID,
	).Scan(&total)
	if err != nil {
		return Page{}, storeErr("count records", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE app_identifier = $1
		  AND NOT is_deleted
		  AND ($2 = '' OR collection_type = $2)
		  AND ($3::uuid IS NULL OR owner_id = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		filter.AppIdentifier, filter.CollectionType, filter.OwnerID, limit, filter.Offset,
	)
	if err != nil {
		return Page{}, storeErr("list records", err)
	}
	defer rows.Close()

	page := Page{Items: []Record{}, Total: total}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Page{}, storeErr("scan record", err)
		}
		page.Items = append(page.Items, *rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, storeErr("iterate records", err)
	}
	return page, nil
}
