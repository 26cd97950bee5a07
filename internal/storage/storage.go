// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"stdimage/internal/field"
	"stdimage/internal/logging"
	"stdimage/internal/models"
)

var ErrNotFound = errors.New("image not found")

// DB is the subset of pgxpool.Pool used by Storage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is an images row together with its bound field value.
type Record struct {
	models.Image
	File *field.ImageFile
}

func (r *Record) Stored() field.Stored {
	return field.Stored{
		Key:    r.Key,
		Width:  r.Width,
		Height: r.Height,
		State:  field.ParseState(r.Status),
	}
}

// BindImage sets the field value and mirrors it into the row columns.
func (r *Record) BindImage(f *field.ImageFile) {
	r.File = f
	if f == nil {
		r.Key, r.Width, r.Height = "", 0, 0
		r.Status = models.StatusUnbound
		return
	}
	r.Key, r.Width, r.Height = f.Key, f.Width, f.Height
	r.Status = f.State.String()
}

// Storage persists image records and fires field hooks around them. It is
// the field.EventSource of the service.
type Storage struct {
	db    DB
	pool  *pgxpool.Pool
	sqlDB *sql.DB // for migrations
	hooks *hooks
	log   logging.Logger
}

var _ field.EventSource = (*Storage)(nil)

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := New(pool)
	s.pool, s.sqlDB = pool, db
	return s, nil
}

// New wraps an existing connection without running migrations.
func New(db DB) *Storage {
	return &Storage{
		db:    db,
		hooks: newHooks(),
		log:   logging.GetLogger("storage"),
	}
}

func (s *Storage) Close() {
	if s.sqlDB != nil {
		s.sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

const selectImage = `SELECT id, route, title, image_key, width, height, status, created_at, updated_at
	FROM images WHERE id = $1`

// Get loads a record and runs its load hooks.
func (s *Storage) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	const op = "storage.Get"

	var rec Record
	err := s.db.QueryRow(ctx, selectImage, id).Scan(
		&rec.ID, &rec.Route, &rec.Title, &rec.Key, &rec.Width, &rec.Height,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.hooks.fire(ctx, s.hooks.load, field.Event{Record: &rec}, rec.Route); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

// Create inserts rec and runs its save hooks.
func (s *Storage) Create(ctx context.Context, rec *Record) error {
	const op = "storage.Create"

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if rec.Status == "" {
		rec.Status = models.StatusUnbound
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO images (id, route, title, image_key, width, height, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Route, rec.Title, rec.Key, rec.Width, rec.Height, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.hooks.fire(ctx, s.hooks.save, field.Event{Record: rec}, rec.Route); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Update writes rec and runs its save hooks with prev, the image stored
// before the change.
func (s *Storage) Update(ctx context.Context, rec *Record, prev *field.Stored) error {
	const op = "storage.Update"

	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx,
		`UPDATE images SET title = $2, image_key = $3, width = $4, height = $5, status = $6, updated_at = $7
		WHERE id = $1`,
		rec.ID, rec.Title, rec.Key, rec.Width, rec.Height, rec.Status, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, rec.ID)
	}

	if err := s.hooks.fire(ctx, s.hooks.save, field.Event{Record: rec, Previous: prev}, rec.Route); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete runs the delete hooks of the loaded record, then removes the row.
// A failing hook keeps the row so the delete can be retried.
func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "storage.Delete"

	rec, err := s.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.hooks.fire(ctx, s.hooks.del, field.Event{Record: rec}, rec.Route); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetStatus updates only the render state of a record.
func (s *Storage) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	const op = "storage.SetStatus"

	tag, err := s.db.Exec(ctx,
		`UPDATE images SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, id)
	}
	return nil
}

// MarkRendered flags every record of route stored under key as rendered.
func (s *Storage) MarkRendered(ctx context.Context, route, key string) error {
	const op = "storage.MarkRendered"

	_, err := s.db.Exec(ctx,
		`UPDATE images SET status = $3, updated_at = $4 WHERE route = $1 AND image_key = $2`,
		route, key, models.StatusRendered, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Keys lists the original keys of route in creation order, skipping the
// first offset records.
func (s *Storage) Keys(ctx context.Context, route string, offset int) ([]string, error) {
	const op = "storage.Keys"

	rows, err := s.db.Query(ctx,
		`SELECT image_key FROM images
		WHERE route = $1 AND image_key <> ''
		ORDER BY created_at, id
		OFFSET $2`,
		route, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return keys, nil
}
