// Package engine runs collection: discover videos, fetch transcripts, extract
// product mentions, match them to the retailer catalog and persist the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/matcher"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
)

// Config holds configuration options for the orchestrator.
type Config struct {
	Logger   *slog.Logger
	Progress ProgressFunc
	Now      func() time.Time
	// TranscriptWorkers bounds concurrent transcript fetches.
	TranscriptWorkers int
	// MatchWorkers bounds concurrent matching; GOMAXPROCS when zero.
	MatchWorkers int
	// CallTimeout bounds each source and store call.
	CallTimeout time.Duration
	// SearchFallback queries the catalog store when the snapshot has no match.
	SearchFallback bool
	// ErrorSamples is how many failure messages the summary keeps.
	ErrorSamples int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TranscriptWorkers: 5,
		MatchWorkers:      runtime.GOMAXPROCS(0),
		CallTimeout:       30 * time.Second,
		SearchFallback:    true,
		ErrorSamples:      5,
	}
}

// Deps are the collaborators of a run.
type Deps struct {
	Source    service.VideoSource
	Catalog   service.CatalogStore
	Store     service.ProductStore
	Extractor Extractor
}

// Orchestrator coordinates collection runs. Runs share no mutable state, so
// one Orchestrator may serve several sequential or concurrent runs.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
	cfg    Config
}

// New creates an orchestrator. Zero config fields take their defaults.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Source == nil || deps.Catalog == nil || deps.Store == nil || deps.Extractor == nil {
		return nil, fmt.Errorf("%w: orchestrator needs source, catalog, store and extractor", common.ErrMissingConfig)
	}
	def := DefaultConfig()
	if cfg.TranscriptWorkers <= 0 {
		cfg.TranscriptWorkers = def.TranscriptWorkers
	}
	if cfg.MatchWorkers <= 0 {
		cfg.MatchWorkers = def.MatchWorkers
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.ErrorSamples <= 0 {
		cfg.ErrorSamples = def.ErrorSamples
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, logger: logger, cfg: cfg}, nil
}

// RunRequest selects what a run collects.
type RunRequest struct {
	Domain model.DomainContext
	Query  string
}

// run is the per-run state. Nothing in it outlives Run.
type run struct {
	o       *Orchestrator
	agg     *common.Aggregator
	summary *RunSummary
	logger  *slog.Logger
	domain  model.DomainContext
}

// item tracks one video through the stages.
type item struct {
	video      model.VideoRecord
	candidates []model.CandidateProduct
	matches    []*model.MatchResult
}

// Run executes one collection run. It never returns per-item failures; they
// are counted in the summary. The run stops early when the context is
// canceled or a systemic failure (auth, critical unknown) is recorded.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) *RunSummary {
	start := o.cfg.Now()
	runID := uuid.NewString()
	r := &run{
		o:       o,
		agg:     common.NewAggregator(),
		summary: newRunSummary(runID, req.Domain.Name, req.Query, start),
		logger:  o.logger.With("run_id", runID, "domain", req.Domain.Name),
		domain:  req.Domain,
	}

	r.logger.Info("Starting collection run", "query", req.Query)

	items := r.discover(ctx, req.Query)
	if r.proceed(ctx) {
		r.fetchTranscripts(ctx, items)
	}
	if r.proceed(ctx) {
		r.extractAll(ctx, items)
	}
	// Candidates extracted before a systemic failure are still matched and
	// stored; only a failure recorded from here on stops them.
	if r.proceed(ctx) || (ctx.Err() == nil && hasCandidates(items)) {
		mark := r.agg.Len()
		r.matchAll(ctx, items, mark)
		if ctx.Err() == nil && !r.agg.ShouldAbortSince(mark) {
			r.persist(ctx, items, mark)
		}
	}
	// proceed marks the summary aborted as a side effect.
	r.proceed(ctx)

	r.summary.Errors = r.agg.Summary(o.cfg.ErrorSamples)
	r.summary.Duration = o.cfg.Now().Sub(start)

	r.logger.Info("Collection run finished",
		"videos", r.summary.VideosDiscovered,
		"candidates", r.summary.Candidates,
		"inserted", r.summary.Inserted,
		"already_present", r.summary.AlreadyPresent,
		"errors", r.summary.Errors.Total,
		"aborted", r.summary.Aborted,
		"duration", r.summary.Duration)
	return r.summary
}

// proceed reports whether later stages may run, marking the summary aborted
// the first time it says no.
func (r *run) proceed(ctx context.Context) bool {
	if r.summary.Aborted {
		return false
	}
	switch {
	case ctx.Err() != nil:
		r.abort(fmt.Sprintf("context: %v", ctx.Err()))
	case r.agg.ShouldAbort():
		r.abort("systemic failure: " + firstSystemic(r.agg.Records()))
	default:
		return true
	}
	return false
}

func (r *run) abort(reason string) {
	r.summary.Aborted = true
	r.summary.AbortReason = reason
	r.logger.Warn("Aborting collection run", "reason", reason)
}

func firstSystemic(records []common.ErrorRecord) string {
	for _, rec := range records {
		if rec.Systemic() {
			return rec.String()
		}
	}
	return "unknown"
}

func hasCandidates(items []*item) bool {
	for _, it := range items {
		if len(it.candidates) > 0 {
			return true
		}
	}
	return false
}

func (r *run) record(err error, op, itemID string) {
	rec := r.agg.Record(err, common.ErrorContext{Store: r.domain.Name, Operation: op, ItemID: itemID})
	r.logger.Warn("Stage item failed",
		"operation", op,
		"item", itemID,
		"kind", rec.Kind,
		"retryable", rec.Retryable,
		"error", err)
}

func (r *run) progress(st Stage, done, total int) {
	if r.o.cfg.Progress != nil {
		r.o.cfg.Progress(st, done, total)
	}
}

func (r *run) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.o.cfg.CallTimeout)
}

// discover lists candidate videos and drops repeated IDs.
func (r *run) discover(ctx context.Context, query string) []*item {
	stats := r.summary.Stages[StageDiscover]
	stats.Attempted = 1

	callCtx, cancel := r.callCtx(ctx)
	refs, err := r.o.deps.Source.ListCandidateVideos(callCtx, query)
	cancel()
	if err != nil {
		stats.Failed = 1
		r.record(err, "list_videos", query)
		return nil
	}
	stats.Succeeded = 1

	seen := make(map[string]struct{}, len(refs))
	collectedAt := r.o.cfg.Now()
	items := make([]*item, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == "" {
			continue
		}
		if _, dup := seen[ref.ID]; dup {
			r.summary.DuplicatesSkipped++
			continue
		}
		seen[ref.ID] = struct{}{}
		items = append(items, &item{video: model.NewVideoRecord(ref, collectedAt)})
	}
	r.summary.VideosDiscovered = len(items)
	r.logger.Info("Discovered videos", "count", len(items), "duplicates", r.summary.DuplicatesSkipped)
	return items
}

// fetchTranscripts fills transcripts with a bounded worker pool. Each
// goroutine writes only its own item.
func (r *run) fetchTranscripts(ctx context.Context, items []*item) {
	stats := r.summary.Stages[StageTranscript]
	stats.Attempted = len(items)

	type outcome struct {
		err     error
		missing bool
		skipped bool
	}
	outcomes := make([]outcome, len(items))

	var (
		mu       sync.Mutex
		finished int
	)
	var g errgroup.Group
	g.SetLimit(r.o.cfg.TranscriptWorkers)
	for i, it := range items {
		g.Go(func() error {
			defer func() {
				mu.Lock()
				finished++
				r.progress(StageTranscript, finished, len(items))
				mu.Unlock()
			}()
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return nil
			}
			if r.agg.ShouldAbort() {
				outcomes[i].skipped = true
				return nil
			}
			callCtx, cancel := r.callCtx(ctx)
			defer cancel()
			text, err := r.o.deps.Source.FetchTranscript(callCtx, it.video.ID)
			switch {
			case err != nil:
				outcomes[i].err = err
				// Recorded here so other workers see a systemic failure at once.
				if !errors.Is(err, context.Canceled) {
					r.record(err, "fetch_transcript", it.video.ID)
				}
			case text == nil || *text == "":
				outcomes[i].missing = true
			default:
				it.video.Transcript = text
				it.video.Status = model.VideoTranscribed
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, out := range outcomes {
		switch {
		case out.err != nil:
			stats.Failed++
			items[i].video.Status = model.VideoFailed
		case out.skipped, out.missing:
			stats.Skipped++
		default:
			stats.Succeeded++
		}
	}
}

// extractAll runs extraction one video at a time; the completion service is
// rate limited, so more concurrency would only queue on the limiter.
func (r *run) extractAll(ctx context.Context, items []*item) {
	stats := r.summary.Stages[StageExtract]
	withText := 0
	for _, it := range items {
		if it.video.HasTranscript() {
			withText++
		}
	}

	done := 0
	for _, it := range items {
		if !it.video.HasTranscript() {
			continue
		}
		if !r.proceed(ctx) {
			return
		}
		stats.Attempted++

		candidates, err := r.o.deps.Extractor.ExtractVideo(ctx, it.video, r.domain, r.agg)
		switch {
		case errors.Is(err, extract.ErrTranscriptRejected), errors.Is(err, common.ErrNoTranscript):
			stats.Skipped++
		case err != nil:
			// The extractor already recorded the failure.
			stats.Failed++
			it.video.Status = model.VideoFailed
		default:
			stats.Succeeded++
			it.video.Status = model.VideoExtracted
			it.candidates = candidates
			r.summary.Candidates += len(candidates)
		}
		done++
		r.progress(StageExtract, done, withText)
	}
}

// matchAll reconciles every candidate against the catalog snapshot, loaded
// once for the run.
func (r *run) matchAll(ctx context.Context, items []*item, mark int) {
	stats := r.summary.Stages[StageMatch]

	var queries []matcher.Query
	for _, it := range items {
		it.matches = make([]*model.MatchResult, len(it.candidates))
		for _, c := range it.candidates {
			queries = append(queries, matcher.QueryFromCandidate(c))
		}
	}
	if len(queries) == 0 {
		return
	}
	stats.Attempted = len(queries)

	callCtx, cancel := r.callCtx(ctx)
	catalog, err := r.o.deps.Catalog.LoadCatalog(callCtx, r.domain.Name)
	cancel()
	switch {
	case err != nil && !r.o.cfg.SearchFallback:
		// Nothing can match without a snapshot or a search fallback.
		rec := common.Critical(err, common.ErrorContext{Store: r.domain.Name, Operation: "load_catalog", ItemID: r.domain.Name})
		r.agg.Add(rec)
		r.logger.Error("Catalog unavailable", "domain", r.domain.Name, "kind", rec.Kind, "error", err)
	case err != nil:
		r.record(err, "load_catalog", r.domain.Name)
	}
	m := matcher.New(catalog, r.domain)
	r.logger.Debug("Catalog snapshot loaded", "entries", m.Size())

	outcomes, err := m.MatchAll(ctx, queries, r.o.cfg.MatchWorkers)
	if err != nil {
		stats.Failed = len(queries)
		return
	}

	n := 0
	for _, it := range items {
		for j := range it.candidates {
			res := outcomes[n].Result
			if res == nil && r.o.cfg.SearchFallback && !r.agg.ShouldAbortSince(mark) {
				var ferr error
				res, ferr = r.searchFallback(ctx, outcomes[n].Query)
				if ferr != nil {
					stats.Failed++
					r.record(ferr, "search_catalog", it.video.ID)
					n++
					r.progress(StageMatch, n, len(queries))
					continue
				}
			}
			it.matches[j] = res
			if res != nil {
				stats.Succeeded++
				r.summary.Matched++
				if res.NeedsManualReview {
					r.summary.NeedsReview++
				}
			} else {
				stats.Skipped++
			}
			n++
			r.progress(StageMatch, n, len(queries))
		}
	}
}

// searchFallback asks the catalog store for entries sharing the query's most
// specific term and matches against that narrower set.
func (r *run) searchFallback(ctx context.Context, q matcher.Query) (*model.MatchResult, error) {
	keyword := fallbackKeyword(q)
	if keyword == "" {
		return nil, nil
	}
	callCtx, cancel := r.callCtx(ctx)
	defer cancel()
	entries, err := r.o.deps.Catalog.SearchCatalog(callCtx, r.domain.Name, keyword)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if res, ok := matcher.New(entries, r.domain).Match(q); ok {
		return &res, nil
	}
	return nil, nil
}

// fallbackKeyword picks the longest keyword, else the longest name word.
func fallbackKeyword(q matcher.Query) string {
	best := ""
	pick := func(words []string) {
		for _, w := range words {
			if len([]rune(w)) > len([]rune(best)) {
				best = w
			}
		}
	}
	pick(q.Keywords)
	if best == "" {
		pick(strings.Fields(q.Name))
	}
	return best
}

// persist saves every video and upserts its candidates.
// persist stores every video and its candidates. It stops at the first
// systemic failure recorded after mark.
func (r *run) persist(ctx context.Context, items []*item, mark int) {
	stats := r.summary.Stages[StagePersist]
	total := len(items) + r.summary.Candidates
	done := 0

	halted := func() bool { return ctx.Err() != nil || r.agg.ShouldAbortSince(mark) }

	for _, it := range items {
		if halted() {
			return
		}
		stats.Attempted++
		callCtx, cancel := r.callCtx(ctx)
		err := r.o.deps.Store.SaveVideo(callCtx, it.video)
		cancel()
		if err != nil {
			stats.Failed++
			r.record(err, "save_video", it.video.ID)
		} else {
			stats.Succeeded++
		}
		done++
		r.progress(StagePersist, done, total)

		for j, c := range it.candidates {
			if halted() {
				return
			}
			stats.Attempted++
			callCtx, cancel := r.callCtx(ctx)
			inserted, err := r.o.deps.Store.UpsertProduct(callCtx, c, it.matches[j])
			cancel()
			switch {
			case err != nil:
				stats.Failed++
				r.record(err, "upsert_product", it.video.ID+"/"+c.Name)
			case inserted:
				stats.Succeeded++
				r.summary.Inserted++
			default:
				stats.Succeeded++
				r.summary.AlreadyPresent++
			}
			done++
			r.progress(StagePersist, done, total)
		}
	}
}
