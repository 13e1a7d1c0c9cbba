// Package storage provides the SQLite persistence layer for collected videos,
// extracted products and retailer catalogs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidVideo   = errors.New("invalid video")
	ErrInvalidEntry   = errors.New("invalid catalog entry")
	ErrInvalidAnchor  = errors.New("invalid timestamp anchor")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateCandidate(c *model.CandidateProduct) error {
	if strings.TrimSpace(c.VideoID) == "" {
		return fmt.Errorf("%w: missing video ID", ErrInvalidProduct)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	if c.Price != nil && *c.Price < 0 {
		return fmt.Errorf("%w: negative price %d", ErrInvalidProduct, *c.Price)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidProduct)
	}
	return nil
}

func validateVideo(v *model.VideoRecord) error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidVideo)
	}
	if v.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidVideo)
	}
	return nil
}

func validateEntry(e *model.CatalogEntry) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: missing name for %s", ErrInvalidEntry, e.ID)
	}
	return nil
}

func validateAnchor(a *model.TimestampAnchor) error {
	if a.ProductID <= 0 {
		return fmt.Errorf("%w: missing product ID", ErrInvalidAnchor)
	}
	if !a.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidAnchor, a.Method)
	}
	if a.EstimatedSeconds < 0 {
		return fmt.Errorf("%w: negative offset", ErrInvalidAnchor)
	}
	return nil
}
