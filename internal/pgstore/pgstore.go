// Package pgstore implements the persistence layer on PostgreSQL through a
// pgx connection pool. It mirrors the SQLite store for multi-host deployments.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// ErrMissingURL is returned when no connection string is configured.
var ErrMissingURL = errors.New("database URL is required")

// Store holds the pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ service.Storage = (*Store)(nil)

// Connect creates a pgx pool and verifies the server is reachable.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrMissingURL
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres connected", slog.String("host", config.ConnConfig.Host))
	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate executes the embedded schema files in name order. Every statement
// is idempotent, so the whole set runs on each call.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := schemaFiles()
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	for _, name := range files {
		data, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", name, err)
		}
		slog.Debug("migration applied", slog.String("file", name))
	}
	return nil
}

func schemaFiles() ([]string, error) {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- Videos ---

// SaveVideo inserts or refreshes a video; a nil transcript keeps the stored one.
func (s *Store) SaveVideo(ctx context.Context, v model.VideoRecord) error {
	if strings.TrimSpace(v.ID) == "" {
		return errors.New("save video: missing ID")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO videos (id, title, description, transcript, channel_name,
			duration_seconds, view_count, status, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			transcript = COALESCE(EXCLUDED.transcript, videos.transcript),
			channel_name = EXCLUDED.channel_name,
			duration_seconds = EXCLUDED.duration_seconds,
			view_count = EXCLUDED.view_count,
			status = EXCLUDED.status`,
		v.ID, v.Title, v.Description, v.Transcript, v.ChannelName,
		v.DurationSeconds, v.ViewCount, string(v.Status), v.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("save video %s: %w", v.ID, err)
	}
	return nil
}

// GetVideo loads one video; unknown IDs yield common.ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	var (
		v      model.VideoRecord
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, transcript, channel_name,
			duration_seconds, view_count, status, collected_at
		 FROM videos WHERE id = $1`, videoID,
	).Scan(&v.ID, &v.Title, &v.Description, &v.Transcript, &v.ChannelName,
		&v.DurationSeconds, &v.ViewCount, &status, &v.CollectedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", videoID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}
	v.Status = model.VideoStatus(status)
	return &v, nil
}

// --- Products ---

// UpsertProduct inserts a candidate unless its dedup key already exists.
func (s *Store) UpsertProduct(ctx context.Context, c model.CandidateProduct, match *model.MatchResult) (bool, error) {
	if strings.TrimSpace(c.VideoID) == "" || strings.TrimSpace(c.Name) == "" {
		return false, errors.New("upsert product: video ID and name are required")
	}

	key := c.DedupKey()
	keywords := c.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	var (
		catalogID         *string
		total, confidence *float64
		review            bool
	)
	if match != nil {
		catalogID = &match.Entry.ID
		total = &match.TotalScore
		confidence = &match.Confidence
		review = match.NeedsManualReview
	}
	var method *string
	if c.TimestampSeconds != nil {
		m := string(model.MethodExistingTranscript)
		method = &m
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO products (
			video_id, name, normalized_name, price, rounded_price, category, keywords,
			confidence, recommended, raw_quote, timestamp_seconds, timestamp_method, ordinal,
			match_catalog_id, match_total, match_confidence, needs_review)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			(SELECT COUNT(*) FROM products WHERE video_id = $1),
			$13, $14, $15, $16)
		 ON CONFLICT (video_id, normalized_name, rounded_price) DO NOTHING`,
		key.VideoID, c.Name, key.NormalizedName, c.Price, key.RoundedPrice, c.Category, keywords,
		c.Confidence, c.Recommended, c.RawQuote, c.TimestampSeconds, method,
		catalogID, total, confidence, review,
	)
	if err != nil {
		return false, fmt.Errorf("insert product %q: %w", c.Name, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountProducts returns the number of stored products.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

const productSelect = `SELECT id, video_id, name, price, category, keywords, confidence,
	recommended, raw_quote, timestamp_seconds, timestamp_method, ordinal, created_at,
	match_catalog_id, match_total, match_confidence, needs_review FROM products`

// GetProductsByVideo returns a video's products in mention order.
func (s *Store) GetProductsByVideo(ctx context.Context, videoID string) ([]model.StoredProduct, error) {
	return s.queryProducts(ctx, productSelect+` WHERE video_id = $1 ORDER BY ordinal, id`, videoID)
}

// GetProductsMissingTimestamp returns products without a mention time.
func (s *Store) GetProductsMissingTimestamp(ctx context.Context) ([]model.StoredProduct, error) {
	return s.queryProducts(ctx, productSelect+` WHERE timestamp_seconds IS NULL ORDER BY video_id, ordinal, id`)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]model.StoredProduct, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var results []model.StoredProduct
	for rows.Next() {
		var (
			p                 model.StoredProduct
			method, catalogID *string
			total, confidence *float64
			review            bool
		)
		if err := rows.Scan(&p.ID, &p.VideoID, &p.Name, &p.Price, &p.Category, &p.Keywords,
			&p.Confidence, &p.Recommended, &p.RawQuote, &p.TimestampSeconds, &method, &p.Ordinal,
			&p.CreatedAt, &catalogID, &total, &confidence, &review); err != nil {
			return nil, err
		}
		if method != nil {
			m := model.TimestampMethod(*method)
			p.TimestampMethod = &m
		}
		if catalogID != nil {
			p.Match = &model.MatchSummary{
				CatalogID:         *catalogID,
				TotalScore:        deref(total),
				Confidence:        deref(confidence),
				NeedsManualReview: review,
			}
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ApplyAnchors writes one phase's anchors in a single transaction, skipping
// products that already have a timestamp.
func (s *Store) ApplyAnchors(ctx context.Context, anchors []model.TimestampAnchor) (int, error) {
	if len(anchors) == 0 {
		return 0, nil
	}
	for _, a := range anchors {
		if !a.Method.Valid() || a.ProductID <= 0 || a.EstimatedSeconds < 0 {
			return 0, fmt.Errorf("apply anchors: invalid anchor for product %d", a.ProductID)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin anchors tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, a := range anchors {
		batch.Queue(`UPDATE products SET timestamp_seconds = $1, timestamp_method = $2
			WHERE id = $3 AND timestamp_seconds IS NULL`,
			a.EstimatedSeconds, string(a.Method), a.ProductID)
	}

	results := tx.SendBatch(ctx, batch)
	updated := 0
	for range anchors {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("apply anchor: %w", err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close anchor batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit anchors: %w", err)
	}
	return updated, nil
}

// --- Catalog ---

// SaveCatalogEntries upserts a domain's catalog rows in one batch.
func (s *Store) SaveCatalogEntries(ctx context.Context, domain string, entries []model.CatalogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	start := time.Now()

	batch := &pgx.Batch{}
	for _, e := range entries {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Name) == "" {
			return 0, fmt.Errorf("save catalog: entry %q lacks ID or name", e.ID)
		}
		batch.Queue(`INSERT INTO catalog_entries
			(domain, id, name, price, category, popularity, is_best, image_url, product_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (domain, id) DO UPDATE SET
				name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category,
				popularity = EXCLUDED.popularity, is_best = EXCLUDED.is_best,
				image_url = EXCLUDED.image_url, product_url = EXCLUDED.product_url`,
			domain, e.ID, e.Name, e.Price, e.Category, e.PopularityScore, e.IsBest, e.ImageURL, e.ProductURL)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("save catalog: %w", err)
	}
	slog.Debug("catalog saved", slog.String("domain", domain), slog.Int("entries", len(entries)),
		slog.Duration("elapsed", time.Since(start)))
	return len(entries), nil
}

const catalogSelect = `SELECT id, name, price, category, popularity, is_best, image_url, product_url
	FROM catalog_entries`

// LoadCatalog returns a domain's full catalog ordered by ID.
func (s *Store) LoadCatalog(ctx context.Context, domain string) ([]model.CatalogEntry, error) {
	return s.queryCatalog(ctx, catalogSelect+` WHERE domain = $1 ORDER BY id`, domain)
}

// SearchCatalog returns entries whose name contains keyword, most popular first.
func (s *Store) SearchCatalog(ctx context.Context, domain, keyword string) ([]model.CatalogEntry, error) {
	return s.queryCatalog(ctx,
		catalogSelect+` WHERE domain = $1 AND strpos(name, $2) > 0 ORDER BY popularity DESC, id`,
		domain, strings.TrimSpace(keyword))
}

func (s *Store) queryCatalog(ctx context.Context, query string, args ...any) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var results []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Price, &e.Category, &e.PopularityScore,
			&e.IsBest, &e.ImageURL, &e.ProductURL); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
