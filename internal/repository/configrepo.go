package repository

import (
	"context"

	"github.com/marwld/minibot/internal/model"
)

// ConfigRepository provides durable CRUD over per-identity settings blobs.
type ConfigRepository interface {
	// Load fetches the stored settings. Returns errs.ErrNotFound when absent;
	// callers that must never fail fall back to process-wide defaults.
	Load(ctx context.Context, identity string) (model.Settings, error)
	// Save upserts the settings blob. Failure propagates to the caller.
	Save(ctx context.Context, identity string, settings model.Settings) error
	// PruneDuplicates deletes all records for the identity except the newest.
	PruneDuplicates(ctx context.Context, identity string) error
}
