package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

const catalogColumns = `id, name, price, category, popularity, is_best, image_url, product_url`

// SaveCatalogEntries replaces or inserts a domain's catalog rows in one
// transaction and returns how many were written.
func (s *SQLiteStorage) SaveCatalogEntries(ctx context.Context, domain string, entries []model.CatalogEntry) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(domain, "domain"); err != nil {
		return 0, err
	}
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return 0, fmt.Errorf("entry at index %d: %w", i, err)
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_entries (domain, `+catalogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			popularity = excluded.popularity,
			is_best = excluded.is_best,
			image_url = excluded.image_url,
			product_url = excluded.product_url`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, domain, e.ID, e.Name, e.Price, e.Category,
			e.PopularityScore, e.IsBest, e.ImageURL, e.ProductURL); err != nil {
			return 0, fmt.Errorf("failed to save catalog entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit catalog: %w", err)
	}
	return len(entries), nil
}

// LoadCatalog returns a domain's full catalog snapshot ordered by ID.
func (s *SQLiteStorage) LoadCatalog(ctx context.Context, domain string) ([]model.CatalogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(domain, "domain"); err != nil {
		return nil, err
	}
	return s.queryCatalog(ctx,
		`SELECT `+catalogColumns+` FROM catalog_entries WHERE domain = ? ORDER BY id`, domain)
}

// SearchCatalog returns the entries whose name contains keyword, most popular first.
func (s *SQLiteStorage) SearchCatalog(ctx context.Context, domain, keyword string) ([]model.CatalogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(domain, "domain"); err != nil {
		return nil, err
	}
	if err := validateString(keyword, "keyword"); err != nil {
		return nil, err
	}
	return s.queryCatalog(ctx, `
		SELECT `+catalogColumns+` FROM catalog_entries
		WHERE domain = ? AND name LIKE ? ESCAPE '\'
		ORDER BY popularity DESC, id`,
		domain, "%"+escapeLike(strings.TrimSpace(keyword))+"%")
}

func (s *SQLiteStorage) queryCatalog(ctx context.Context, query string, args ...any) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Price, &e.Category,
			&e.PopularityScore, &e.IsBest, &e.ImageURL, &e.ProductURL); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
