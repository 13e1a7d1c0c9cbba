// Package backfill fills in missing mention timestamps for stored products.
//
// The reconciler runs four phases in order of decreasing reliability. Each
// phase writes its anchors in one transaction before the next phase starts,
// so an interrupted run resumes where it stopped: products resolved by an
// earlier run no longer appear in the unresolved set.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
)

// Phase identifies one resolution strategy.
type Phase int

// Phase values.
const (
	PhaseTranscript Phase = iota + 1
	PhaseChapters
	PhaseDescription
	PhaseInterpolate
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseTranscript, PhaseChapters, PhaseDescription, PhaseInterpolate}

func (p Phase) String() string {
	switch p {
	case PhaseTranscript:
		return "transcript"
	case PhaseChapters:
		return "chapters"
	case PhaseDescription:
		return "description"
	case PhaseInterpolate:
		return "interpolate"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Method is the timestamp method recorded for anchors produced by p.
func (p Phase) Method() model.TimestampMethod {
	switch p {
	case PhaseChapters:
		return model.MethodChapterMetadata
	case PhaseDescription:
		return model.MethodDescriptionParsed
	case PhaseInterpolate:
		return model.MethodPositionInterpolated
	}
	return model.MethodExistingTranscript
}

// ChapterSource supplies chapter metadata. service.VideoSource satisfies it.
type ChapterSource interface {
	FetchChapterMetadata(ctx context.Context, videoID string) ([]model.Chapter, bool, error)
}

// Options configures a Reconciler.
type Options struct {
	Logger *slog.Logger
	// Chapters is optional; the chapter phase is skipped when nil.
	Chapters ChapterSource
	// CallTimeout bounds each store and chapter call.
	CallTimeout time.Duration
	// MarkerWindow is how far, in runes, a transcript marker may sit from a
	// product mention.
	MarkerWindow int
	// MinChapterScore is the lowest fuzzy score a chapter title may have.
	MinChapterScore float64
	ErrorSamples    int
	// DryRun computes anchors without writing them.
	DryRun bool
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		CallTimeout:     30 * time.Second,
		MarkerWindow:    200,
		MinChapterScore: 0.4,
		ErrorSamples:    5,
	}
}

// PhaseResult counts one phase's work.
type PhaseResult struct {
	Phase      Phase                 `json:"phase"`
	Method     model.TimestampMethod `json:"method"`
	Considered int                   `json:"considered"`
	Resolved   int                   `json:"resolved"`
}

// Result is the outcome of one reconciler run.
type Result struct {
	Errors     common.ErrorSummary     `json:"errors"`
	Phases     []PhaseResult           `json:"phases"`
	Anchors    []model.TimestampAnchor `json:"-"`
	Unresolved int                     `json:"unresolved"`
	Remaining  int                     `json:"remaining"`
	DryRun     bool                    `json:"dry_run"`
}

// Resolved returns the total number of products resolved across phases.
func (r *Result) Resolved() int {
	n := 0
	for _, p := range r.Phases {
		n += p.Resolved
	}
	return n
}

// ErrNilStore is returned by New when no store is given.
var ErrNilStore = errors.New("backfill store is required")

// Reconciler resolves missing mention timestamps.
type Reconciler struct {
	store  service.BackfillStore
	logger *slog.Logger
	opts   Options
}

// New creates a reconciler. Zero option fields take their defaults.
func New(store service.BackfillStore, opts Options) (*Reconciler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	def := DefaultOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.MarkerWindow <= 0 {
		opts.MarkerWindow = def.MarkerWindow
	}
	if opts.MinChapterScore <= 0 {
		opts.MinChapterScore = def.MinChapterScore
	}
	if opts.ErrorSamples <= 0 {
		opts.ErrorSamples = def.ErrorSamples
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger, opts: opts}, nil
}

// state tracks what is still unresolved during one run.
type state struct {
	videos   map[string]*model.VideoRecord
	pending  map[string][]model.StoredProduct
	resolved map[int64]int
	order    []string // video ids in first-seen order
}

func (s *state) remaining() int {
	n := 0
	for _, ps := range s.pending {
		n += len(ps)
	}
	return n
}

// apply removes the anchored products from the pending set.
func (s *state) apply(anchors []model.TimestampAnchor) {
	if len(anchors) == 0 {
		return
	}
	done := make(map[int64]struct{}, len(anchors))
	for _, a := range anchors {
		done[a.ProductID] = struct{}{}
		s.resolved[a.ProductID] = a.EstimatedSeconds
	}
	for vid, ps := range s.pending {
		kept := ps[:0]
		for _, p := range ps {
			if _, ok := done[p.ID]; !ok {
				kept = append(kept, p)
			}
		}
		s.pending[vid] = kept
	}
}

// Run executes all phases. Per-video lookup failures are recorded in the
// result and skipped; a failure to list or commit is returned.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	agg := common.NewAggregator()
	res := &Result{DryRun: r.opts.DryRun}

	st, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	res.Unresolved = st.remaining()
	r.logger.Info("Starting timestamp backfill",
		"unresolved", res.Unresolved,
		"videos", len(st.order),
		"dry_run", r.opts.DryRun)

	for _, ph := range Phases {
		if err := ctx.Err(); err != nil {
			res.Remaining = st.remaining()
			res.Errors = agg.Summary(r.opts.ErrorSamples)
			return res, err
		}
		pr := PhaseResult{Phase: ph, Method: ph.Method(), Considered: st.remaining()}
		if pr.Considered > 0 {
			anchors := r.runPhase(ctx, ph, st, agg)
			n, err := r.commit(ctx, anchors)
			if err != nil {
				res.Remaining = st.remaining()
				res.Errors = agg.Summary(r.opts.ErrorSamples)
				return res, fmt.Errorf("commit %s phase: %w", ph, err)
			}
			st.apply(anchors)
			res.Anchors = append(res.Anchors, anchors...)
			pr.Resolved = n
		}
		res.Phases = append(res.Phases, pr)
		r.logger.Info("Backfill phase complete",
			"phase", ph.String(),
			"considered", pr.Considered,
			"resolved", pr.Resolved)
	}

	res.Remaining = st.remaining()
	res.Errors = agg.Summary(r.opts.ErrorSamples)
	r.logger.Info("Timestamp backfill finished",
		"resolved", res.Resolved(),
		"remaining", res.Remaining,
		"errors", res.Errors.Total)
	return res, nil
}

func (r *Reconciler) load(ctx context.Context) (*state, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	products, err := r.store.GetProductsMissingTimestamp(callCtx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved products: %w", err)
	}
	st := &state{
		videos:   make(map[string]*model.VideoRecord),
		pending:  make(map[string][]model.StoredProduct),
		resolved: make(map[int64]int),
	}
	for _, p := range products {
		if p.HasTimestamp() {
			continue
		}
		if _, ok := st.pending[p.VideoID]; !ok {
			st.order = append(st.order, p.VideoID)
		}
		st.pending[p.VideoID] = append(st.pending[p.VideoID], p)
	}
	return st, nil
}

func (r *Reconciler) runPhase(ctx context.Context, ph Phase, st *state, agg *common.Aggregator) []model.TimestampAnchor {
	if ph == PhaseChapters && r.opts.Chapters == nil {
		r.logger.Debug("No chapter source configured, skipping phase")
		return nil
	}
	var anchors []model.TimestampAnchor
	for _, vid := range st.order {
		if ctx.Err() != nil {
			break
		}
		pending := st.pending[vid]
		if len(pending) == 0 {
			continue
		}
		video := r.video(ctx, st, vid, agg)
		if video == nil {
			continue
		}
		switch ph {
		case PhaseTranscript:
			anchors = append(anchors, transcriptAnchors(*video, pending, r.opts.MarkerWindow)...)
		case PhaseChapters:
			chapters, ok := r.chapters(ctx, vid, agg)
			if ok {
				anchors = append(anchors, chapterAnchors(*video, pending, chapters, ph.Method(), r.opts.MinChapterScore)...)
			}
		case PhaseDescription:
			lines := ParseDescriptionChapters(video.Description)
			anchors = append(anchors, chapterAnchors(*video, pending, lines, ph.Method(), r.opts.MinChapterScore)...)
		case PhaseInterpolate:
			if video.DurationSeconds <= 0 {
				continue
			}
			all, err := r.products(ctx, vid)
			if err != nil {
				r.record(agg, err, "get_products", vid)
				continue
			}
			anchors = append(anchors, Interpolate(video.DurationSeconds, all, pending, st.resolved)...)
		}
	}
	return anchors
}

func (r *Reconciler) commit(ctx context.Context, anchors []model.TimestampAnchor) (int, error) {
	if len(anchors) == 0 {
		return 0, nil
	}
	if r.opts.DryRun {
		return len(anchors), nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.store.ApplyAnchors(callCtx, anchors)
}

// video loads and caches a video record. A failed lookup is cached as nil so
// later phases do not retry it.
func (r *Reconciler) video(ctx context.Context, st *state, id string, agg *common.Aggregator) *model.VideoRecord {
	if v, ok := st.videos[id]; ok {
		return v
	}
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	v, err := r.store.GetVideo(callCtx, id)
	if err != nil {
		r.record(agg, err, "get_video", id)
		v = nil
	}
	st.videos[id] = v
	return v
}

func (r *Reconciler) chapters(ctx context.Context, id string, agg *common.Aggregator) ([]model.Chapter, bool) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	chapters, ok, err := r.opts.Chapters.FetchChapterMetadata(callCtx, id)
	if err != nil {
		r.record(agg, err, "fetch_chapters", id)
		return nil, false
	}
	return chapters, ok && len(chapters) > 0
}

func (r *Reconciler) products(ctx context.Context, id string) ([]model.StoredProduct, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.store.GetProductsByVideo(callCtx, id)
}

func (r *Reconciler) record(agg *common.Aggregator, err error, op, itemID string) {
	rec := agg.Record(err, common.ErrorContext{Store: "backfill", Operation: op, ItemID: itemID})
	r.logger.Warn("Backfill item failed",
		"operation", op,
		"video_id", itemID,
		"kind", rec.Kind,
		"error", err)
}
