package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/model"
)

// ConfigRepo implements ConfigRepository using PostgreSQL.
// Same duplicate model as SessionRepo: no unique constraint, prune on demand.
type ConfigRepo struct{ db *DB }

// NewConfigRepo constructs a config repository.
func NewConfigRepo(db *DB) *ConfigRepo { return &ConfigRepo{db: db} }

// Load selects the most recently updated settings blob.
func (r *ConfigRepo) Load(ctx context.Context, identity string) (model.Settings, error) {
	const q = `
SELECT config FROM configs WHERE identity=$1 ORDER BY updated_at DESC, id DESC LIMIT 1`
	var raw []byte
	if err := r.db.Pool.QueryRow(ctx, q, identity).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	var s model.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode config for %s: %w", identity, err)
	}
	return s, nil
}

// Save upserts the settings blob, refreshing updated_at.
func (r *ConfigRepo) Save(ctx context.Context, identity string, settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode config for %s: %w", identity, err)
	}
	const q = `
WITH up AS (
  UPDATE configs SET config=$2, updated_at=now() WHERE identity=$1 RETURNING id
)
INSERT INTO configs (identity, config)
SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM up)`
	_, err = r.db.Pool.Exec(ctx, q, identity, raw)
	return err
}

// PruneDuplicates deletes all but the most recently updated record.
func (r *ConfigRepo) PruneDuplicates(ctx context.Context, identity string) error {
	const q = `
DELETE FROM configs
WHERE identity=$1 AND id NOT IN (
  SELECT id FROM configs WHERE identity=$1 ORDER BY updated_at DESC, id DESC LIMIT 1
)`
	_, err := r.db.Pool.Exec(ctx, q, identity)
	return err
}
