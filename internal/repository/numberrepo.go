package repository

import "context"

// NumberRepository is the durable registry of identities eligible for
// bulk auto-reconnect. Append-only from the system's perspective.
type NumberRepository interface {
	// Add upserts the identity into the registry.
	Add(ctx context.Context, identity string) error
	// All lists every registered identity.
	All(ctx context.Context) ([]string, error)
}
