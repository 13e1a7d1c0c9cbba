// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

// VideoSource discovers videos and supplies their text.
type VideoSource interface {
	ListCandidateVideos(ctx context.Context, query string) ([]model.VideoRef, error)
	// FetchTranscript returns nil when the video has no transcript.
	FetchTranscript(ctx context.Context, videoID string) (*string, error)
	// FetchChapterMetadata reports ok=false when the source has no chapter data for the video.
	FetchChapterMetadata(ctx context.Context, videoID string) (chapters []model.Chapter, ok bool, err error)
}

// CatalogStore provides the authoritative retailer catalog.
type CatalogStore interface {
	LoadCatalog(ctx context.Context, domain string) ([]model.CatalogEntry, error)
	SearchCatalog(ctx context.Context, domain, keyword string) ([]model.CatalogEntry, error)
}

// ProductStore persists collection results idempotently.
type ProductStore interface {
	// UpsertProduct returns true when a new record was inserted and false when
	// the dedup key (video, normalized name, rounded price) already existed.
	UpsertProduct(ctx context.Context, candidate model.CandidateProduct, match *model.MatchResult) (bool, error)
	SaveVideo(ctx context.Context, video model.VideoRecord) error
}

// BackfillStore is the persistence surface of the timestamp reconciler.
type BackfillStore interface {
	GetProductsMissingTimestamp(ctx context.Context) ([]model.StoredProduct, error)
	GetProductsByVideo(ctx context.Context, videoID string) ([]model.StoredProduct, error)
	GetVideo(ctx context.Context, videoID string) (*model.VideoRecord, error)
	// ApplyAnchors writes one phase's anchors atomically and never overwrites
	// a product that already carries a timestamp.
	ApplyAnchors(ctx context.Context, anchors []model.TimestampAnchor) (int, error)
}

// Completer is a single request/response text completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Storage is the full persistence layer implemented by the database backends.
type Storage interface {
	CatalogStore
	ProductStore
	BackfillStore

	SaveCatalogEntries(ctx context.Context, domain string, entries []model.CatalogEntry) (int, error)
	CountProducts(ctx context.Context) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions allows three attempts with delays of base and 2×base.
func DefaultRetryOptions(base time.Duration) RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: base,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}
