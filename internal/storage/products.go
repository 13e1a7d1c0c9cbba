package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

const productColumns = `id, video_id, name, price, category, keywords, confidence,
	recommended, raw_quote, timestamp_seconds, timestamp_method, ordinal, created_at,
	match_catalog_id, match_total, match_confidence, needs_review`

// UpsertProduct stores a candidate keyed by (video, normalized name, rounded
// price). It reports false when that key already exists; the stored row is
// left untouched in that case.
func (s *SQLiteStorage) UpsertProduct(ctx context.Context, candidate model.CandidateProduct, match *model.MatchResult) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateCandidate(&candidate); err != nil {
		return false, err
	}

	keywords, err := json.Marshal(nonNilStrings(candidate.Keywords))
	if err != nil {
		return false, fmt.Errorf("failed to encode keywords: %w", err)
	}

	var (
		catalogID  sql.NullString
		total      sql.NullFloat64
		confidence sql.NullFloat64
		review     bool
	)
	if match != nil {
		catalogID = sql.NullString{String: match.Entry.ID, Valid: true}
		total = sql.NullFloat64{Float64: match.TotalScore, Valid: true}
		confidence = sql.NullFloat64{Float64: match.Confidence, Valid: true}
		review = match.NeedsManualReview
	}

	var method sql.NullString
	if candidate.TimestampSeconds != nil {
		method = sql.NullString{String: string(model.MethodExistingTranscript), Valid: true}
	}

	key := candidate.DedupKey()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ordinal int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE video_id = ?`, key.VideoID).Scan(&ordinal); err != nil {
		return false, fmt.Errorf("failed to compute ordinal: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO products (
			video_id, name, normalized_name, price, rounded_price, category, keywords,
			confidence, recommended, raw_quote, timestamp_seconds, timestamp_method, ordinal,
			match_catalog_id, match_total, match_confidence, needs_review
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, normalized_name, rounded_price) DO NOTHING`,
		key.VideoID, candidate.Name, key.NormalizedName, candidate.Price, key.RoundedPrice,
		candidate.Category, string(keywords), candidate.Confidence, candidate.Recommended,
		candidate.RawQuote, candidate.TimestampSeconds, method, ordinal,
		catalogID, total, confidence, review,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert product %q: %w", candidate.Name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit product: %w", err)
	}
	return affected == 1, nil
}

// GetProductsByVideo returns a video's products in mention order.
func (s *SQLiteStorage) GetProductsByVideo(ctx context.Context, videoID string) ([]model.StoredProduct, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(videoID, "videoID"); err != nil {
		return nil, err
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE video_id = ? ORDER BY ordinal, id`, videoID)
}

// GetProductsMissingTimestamp returns every product without a mention time,
// grouped by video and in mention order.
func (s *SQLiteStorage) GetProductsMissingTimestamp(ctx context.Context) ([]model.StoredProduct, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE timestamp_seconds IS NULL ORDER BY video_id, ordinal, id`)
}

// GetProductsNeedingReview returns matched products flagged for manual review.
func (s *SQLiteStorage) GetProductsNeedingReview(ctx context.Context) ([]model.StoredProduct, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE needs_review = 1 ORDER BY video_id, ordinal`)
}

func (s *SQLiteStorage) queryProducts(ctx context.Context, query string, args ...any) ([]model.StoredProduct, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.StoredProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*model.StoredProduct, error) {
	var (
		p          model.StoredProduct
		price      sql.NullInt64
		category   sql.NullString
		keywords   string
		rawQuote   sql.NullString
		seconds    sql.NullInt64
		method     sql.NullString
		catalogID  sql.NullString
		total      sql.NullFloat64
		confidence sql.NullFloat64
		review     bool
	)
	if err := row.Scan(&p.ID, &p.VideoID, &p.Name, &price, &category, &keywords,
		&p.Confidence, &p.Recommended, &rawQuote, &seconds, &method, &p.Ordinal, &p.CreatedAt,
		&catalogID, &total, &confidence, &review); err != nil {
		return nil, err
	}

	if price.Valid {
		v := int(price.Int64)
		p.Price = &v
	}
	if category.Valid {
		p.Category = &category.String
	}
	if rawQuote.Valid {
		p.RawQuote = &rawQuote.String
	}
	if seconds.Valid {
		v := int(seconds.Int64)
		p.TimestampSeconds = &v
	}
	if method.Valid {
		m := model.TimestampMethod(method.String)
		p.TimestampMethod = &m
	}
	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords for product %d: %w", p.ID, err)
	}
	if catalogID.Valid {
		p.Match = &model.MatchSummary{
			CatalogID:         catalogID.String,
			TotalScore:        total.Float64,
			Confidence:        confidence.Float64,
			NeedsManualReview: review,
		}
	}
	return &p, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
