// Package store persists canonical business records. Upserts are
// idempotent, keyed by the source place ID, so re-running a batch or
// re-verifying a business updates rows instead of duplicating them.
package store

import (
	"context"

	"github.com/sells-group/listings-cli/internal/model"
)

// ContactStats summarizes contact-detail coverage across the store.
type ContactStats struct {
	TotalBusinesses int `json:"total_businesses"`
	WithPhone       int `json:"with_phone"`
	WithWebsite     int `json:"with_website"`
	WithEmail       int `json:"with_email"`
	Verified        int `json:"verified"`
}

// Store defines the persistence interface for the verification pipeline.
type Store interface {
	// UpsertBusiness inserts or updates a record, keyed by place ID when
	// present, and returns the stored row's identifier.
	UpsertBusiness(ctx context.Context, rec *model.Record) (string, error)

	// UpdateRegistryData writes registry verification fields onto an
	// existing row and stamps last_verified.
	UpdateRegistryData(ctx context.Context, id string, rec *model.Record) error

	// ListUnverified returns records never verified against the registry
	// or whose verification is older than 30 days.
	ListUnverified(ctx context.Context, limit int) ([]model.Record, error)

	// LogSearch records one collection search for reporting.
	LogSearch(ctx context.Context, industry, searchTerm, location string, resultsCount int) error

	// ContactStats aggregates contact coverage for the report command.
	ContactStats(ctx context.Context) (*ContactStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
