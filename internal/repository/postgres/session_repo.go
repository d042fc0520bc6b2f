package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// SessionRepo implements SessionRepository using PostgreSQL.
//
// The sessions table carries no unique constraint on identity: concurrent
// writers may race and leave duplicate rows, and PruneDuplicates restores the
// one-current-record invariant before each connection attempt.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Restore selects the most recently updated credential blob, or (nil, nil).
func (r *SessionRepo) Restore(ctx context.Context, identity string) ([]byte, error) {
	const q = `
SELECT creds FROM sessions WHERE identity=$1 ORDER BY updated_at DESC, id DESC LIMIT 1`
	var creds []byte
	if err := r.db.Pool.QueryRow(ctx, q, identity).Scan(&creds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return creds, nil
}

// Persist upserts the credential blob in a single statement. Without a unique
// index the update-then-insert CTE can still race into duplicates; that is
// resolved by PruneDuplicates, not prevented here.
func (r *SessionRepo) Persist(ctx context.Context, identity string, creds []byte) error {
	const q = `
WITH up AS (
  UPDATE sessions SET creds=$2, updated_at=now() WHERE identity=$1 RETURNING id
)
INSERT INTO sessions (identity, creds)
SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM up)`
	_, err := r.db.Pool.Exec(ctx, q, identity, creds)
	return err
}

// PruneDuplicates deletes all but the most recently updated record.
func (r *SessionRepo) PruneDuplicates(ctx context.Context, identity string) error {
	const q = `
DELETE FROM sessions
WHERE identity=$1 AND id NOT IN (
  SELECT id FROM sessions WHERE identity=$1 ORDER BY updated_at DESC, id DESC LIMIT 1
)`
	_, err := r.db.Pool.Exec(ctx, q, identity)
	return err
}

// Identities lists distinct identities with a stored credential record.
func (r *SessionRepo) Identities(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT identity FROM sessions ORDER BY identity`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Delete removes every credential record for the identity.
func (r *SessionRepo) Delete(ctx context.Context, identity string) error {
	const q = `DELETE FROM sessions WHERE identity=$1`
	_, err := r.db.Pool.Exec(ctx, q, identity)
	return err
}
