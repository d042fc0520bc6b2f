// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// SessionRepository provides durable CRUD over per-identity credential blobs.
type SessionRepository interface {
	// Restore fetches the most recent credential blob. Returns (nil, nil) when
	// no record exists; absence is not an error.
	Restore(ctx context.Context, identity string) ([]byte, error)
	// Persist upserts the credential blob for the identity, refreshing updated_at.
	// Safe to call arbitrarily often from credential-rotation events.
	Persist(ctx context.Context, identity string, creds []byte) error
	// PruneDuplicates deletes all records for the identity except the one with
	// the latest updated_at. Called before every connection attempt.
	PruneDuplicates(ctx context.Context, identity string) error
	// Identities lists all identities with a stored credential record.
	Identities(ctx context.Context) ([]string, error)
	// Delete removes every credential record for the identity (deregistration).
	Delete(ctx context.Context, identity string) error
}
