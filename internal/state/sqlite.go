package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists attributes in the attributes table created by the
// attribute_store migration.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, name string) (Attribute, error) {
	var (
		raw     string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, updated_at FROM attributes WHERE name = ?", name,
	).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Attribute{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Attribute{}, fmt.Errorf("%w: reading %s: %w", ErrStoreUnavailable, name, err)
	}

	return decodeRow(name, raw, updated)
}

// Set implements Store. The upsert is a single statement, so each
// attribute's value and timestamp change together.
func (s *SQLiteStore) Set(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attributes (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, name, string(raw), s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrStoreUnavailable, name, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Attribute, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value, updated_at FROM attributes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: listing attributes: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Attribute
	for rows.Next() {
		var (
			name, raw string
			updated   int64
		)
		if err := rows.Scan(&name, &raw, &updated); err != nil {
			return nil, fmt.Errorf("%w: scanning attribute: %w", ErrStoreUnavailable, err)
		}
		attr, err := decodeRow(name, raw, updated)
		if err != nil {
			return nil, err
		}
		out = append(out, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing attributes: %w", ErrStoreUnavailable, err)
	}
	return out, nil
}

func decodeRow(name, raw string, updated int64) (Attribute, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Attribute{}, fmt.Errorf("decoding %s: %w", name, err)
	}
	return Attribute{
		Name:      name,
		Value:     value,
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}
