package storage

import (
	"context"
	"fmt"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

// ApplyAnchors writes a batch of resolved mention times in one transaction.
// Products that already carry a timestamp are skipped, so rerunning a phase
// changes nothing. It returns the number of products updated.
func (s *SQLiteStorage) ApplyAnchors(ctx context.Context, anchors []model.TimestampAnchor) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range anchors {
		if err := validateAnchor(&anchors[i]); err != nil {
			return 0, fmt.Errorf("anchor at index %d: %w", i, err)
		}
	}
	if len(anchors) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE products
		SET timestamp_seconds = ?, timestamp_method = ?
		WHERE id = ? AND timestamp_seconds IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	updated := 0
	for _, a := range anchors {
		res, err := stmt.ExecContext(ctx, a.EstimatedSeconds, string(a.Method), a.ProductID)
		if err != nil {
			return 0, fmt.Errorf("failed to apply anchor for product %d: %w", a.ProductID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit anchors: %w", err)
	}
	return updated, nil
}
