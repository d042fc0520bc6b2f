package postgres

import "context"

// NumberRepo implements NumberRepository using PostgreSQL.
type NumberRepo struct{ db *DB }

// NewNumberRepo constructs a number-registry repository.
func NewNumberRepo(db *DB) *NumberRepo { return &NumberRepo{db: db} }

// Add upserts the identity into the registry.
func (r *NumberRepo) Add(ctx context.Context, identity string) error {
	const q = `INSERT INTO numbers (identity) VALUES ($1) ON CONFLICT (identity) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, identity)
	return err
}

// All lists every registered identity.
func (r *NumberRepo) All(ctx context.Context) ([]string, error) {
	const q = `SELECT identity FROM numbers ORDER BY identity`
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
