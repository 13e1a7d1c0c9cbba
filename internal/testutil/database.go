// Package testutil provides shared fixtures, collaborator mocks and an
// in-memory database for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
	"github.com/allofdaniel/shopping-helper/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database, migrated and seeded with
// the given catalog entries for the domain. Cleanup is registered on t.
//
// Example:
//
//	db := testutil.SetupTestDB(t, "daiso", testutil.DaisoCatalog())
func SetupTestDB(t *testing.T, domain string, catalog []model.CatalogEntry) *TestDB {
	t.Helper()

	return SetupTestDBWithOptions(t, TestDBOptions{Domain: domain, Catalog: catalog})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Domain         string
	Catalog        []model.CatalogEntry
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	// Create in-memory SQLite storage
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	// Run migrations unless skipped
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.Catalog) > 0 {
		if _, err := store.SaveCatalogEntries(ctx, opts.Domain, opts.Catalog); err != nil {
			t.Fatalf("failed to seed catalog: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustSaveVideo stores a video or fails the test.
func (db *TestDB) MustSaveVideo(video model.VideoRecord) {
	db.t.Helper()
	if err := db.Storage.SaveVideo(context.Background(), video); err != nil {
		db.t.Fatalf("failed to save video %s: %v", video.ID, err)
	}
}

// MustUpsertProduct stores a candidate or fails the test.
func (db *TestDB) MustUpsertProduct(candidate model.CandidateProduct) {
	db.t.Helper()
	if _, err := db.Storage.UpsertProduct(context.Background(), candidate, nil); err != nil {
		db.t.Fatalf("failed to upsert product %q: %v", candidate.Name, err)
	}
}
