package engine

import (
	"context"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/model"
)

// Extractor turns one video's transcript into candidate products.
type Extractor interface {
	ExtractVideo(ctx context.Context, video model.VideoRecord, domain model.DomainContext, agg *common.Aggregator) ([]model.CandidateProduct, error)
}

// ProgressFunc is called after each item of a stage completes.
type ProgressFunc func(stage Stage, done, total int)
