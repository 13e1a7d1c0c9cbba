// Package extract turns transcript text into candidate product mentions with
// a single rate-limited completion call per transcript.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/llm"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
	"github.com/allofdaniel/shopping-helper/internal/transcript"
)

// ErrTranscriptRejected is returned by ExtractVideo when the quality gate
// rejects the transcript. No completion call is made in that case.
var ErrTranscriptRejected = errors.New("transcript rejected")

// Config wires an Extractor to its collaborators.
type Config struct {
	Completer  service.Completer
	Limiter    *llm.RateLimiter
	Cache      *llm.ResponseCache // optional
	Aggregator *common.Aggregator // optional, used by Extract
	Logger     *slog.Logger       // optional
	Retry      service.RetryOptions
	// CallTimeout bounds each completion attempt.
	CallTimeout time.Duration
}

// Extractor issues extraction calls and normalizes their answers.
type Extractor struct {
	completer   service.Completer
	limiter     *llm.RateLimiter
	cache       *llm.ResponseCache
	aggregator  *common.Aggregator
	logger      *slog.Logger
	prompts     *PromptBuilder
	retry       service.RetryOptions
	callTimeout time.Duration
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("%w: extractor needs a completion client", common.ErrMissingConfig)
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("%w: extractor needs a rate limiter", common.ErrMissingConfig)
	}
	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = service.DefaultRetryOptions(time.Second)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = common.NewAggregator()
	}
	return &Extractor{
		completer:   cfg.Completer,
		limiter:     cfg.Limiter,
		cache:       cfg.Cache,
		aggregator:  cfg.Aggregator,
		logger:      cfg.Logger,
		prompts:     prompts,
		retry:       cfg.Retry,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// Extract returns the surfacing candidates found in text. It never fails:
// rejected transcripts, failed calls and malformed answers all yield an empty
// slice, and call failures are recorded in the configured aggregator.
func (e *Extractor) Extract(ctx context.Context, text string, domain model.DomainContext) []model.CandidateProduct {
	candidates, _ := e.extract(ctx, "", text, domain, e.aggregator)
	return candidates
}

// ExtractVideo extracts from a video's transcript and stamps the video ID on
// every candidate. A completion failure is recorded in agg and also returned
// so the caller can count it; rejection returns ErrTranscriptRejected.
func (e *Extractor) ExtractVideo(ctx context.Context, video model.VideoRecord, domain model.DomainContext, agg *common.Aggregator) ([]model.CandidateProduct, error) {
	if !video.HasTranscript() {
		return []model.CandidateProduct{}, common.ErrNoTranscript
	}
	if agg == nil {
		agg = e.aggregator
	}
	return e.extract(ctx, video.ID, *video.Transcript, domain, agg)
}

func (e *Extractor) extract(ctx context.Context, videoID, text string, domain model.DomainContext, agg *common.Aggregator) ([]model.CandidateProduct, error) {
	empty := []model.CandidateProduct{}
	text = transcript.Sanitize(text)

	verdict := transcript.Validate(text, domain)
	if !verdict.IsValid {
		e.logger.Debug("Transcript rejected",
			"video_id", videoID,
			"reason", verdict.RejectionReason,
			"quality", verdict.QualityScore)
		return empty, fmt.Errorf("%w: %s", ErrTranscriptRejected, verdict.RejectionReason)
	}

	prompt, err := e.prompts.Build(text, domain)
	if err != nil {
		agg.Record(err, common.ErrorContext{Store: domain.Name, Operation: "build_prompt", ItemID: videoID})
		return empty, err
	}

	response, err := e.complete(ctx, prompt)
	if err != nil {
		agg.Record(err, common.ErrorContext{Store: domain.Name, Operation: "extract", ItemID: videoID})
		e.logger.Warn("Extraction call failed", "video_id", videoID, "error", err)
		return empty, err
	}

	items, err := parseResponse(response)
	if err != nil {
		e.logger.Warn("Unparseable extraction response",
			"video_id", videoID,
			"error", err,
			"response_length", len(response))
		return empty, nil
	}

	candidates := make([]model.CandidateProduct, 0, len(items))
	dropped := 0
	for _, item := range items {
		c, ok := item.toCandidate(videoID)
		if !ok || !c.Surfaces() {
			dropped++
			continue
		}
		candidates = append(candidates, c)
	}
	candidates = Dedupe(candidates)

	e.logger.Debug("Extracted candidates",
		"video_id", videoID,
		"returned", len(items),
		"dropped", dropped,
		"kept", len(candidates))
	return candidates, nil
}

// complete runs one rate-limited completion, retried on retryable failures.
// Cached answers skip both the limiter and the call.
func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	key := llm.CacheKey(prompt)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached, nil
		}
	}

	var response string
	err := common.WithRetry(ctx, func() error {
		if !e.limiter.TryAcquire() {
			e.logger.Debug("Completion waiting on rate limiter")
			if _, err := e.limiter.Acquire(ctx); err != nil {
				return err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		out, err := e.completer.Complete(callCtx, prompt)
		if err != nil {
			return err
		}
		response = out
		return nil
	}, e.retry)
	if err != nil {
		return "", err
	}

	if e.cache != nil {
		e.cache.Set(key, response)
	}
	return response, nil
}
