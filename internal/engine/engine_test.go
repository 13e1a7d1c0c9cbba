package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/llm"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
	"github.com/allofdaniel/shopping-helper/internal/testutil"
)

type fixture struct {
	source    *testutil.MockVideoSource
	completer *testutil.MockCompleter
	db        *testutil.TestDB
	orch      *Orchestrator
}

func newFixture(t *testing.T, catalog []model.CatalogEntry, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		source:    &testutil.MockVideoSource{},
		completer: &testutil.MockCompleter{},
		db:        testutil.SetupTestDB(t, "daiso", catalog),
	}
	f.orch = f.build(t, f.db.Storage, cfg)
	return f
}

func (f *fixture) build(t *testing.T, catalog service.CatalogStore, cfg Config) *Orchestrator {
	t.Helper()
	ext, err := extract.New(extract.Config{
		Completer: f.completer,
		Limiter:   llm.NewRateLimiter(100, 100),
		Retry:     service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	orch, err := New(Deps{
		Source:    f.source,
		Catalog:   catalog,
		Store:     f.db.Storage,
		Extractor: ext,
	}, cfg)
	require.NoError(t, err)
	return orch
}

func refs(ids ...string) []model.VideoRef {
	out := make([]model.VideoRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.VideoRef{ID: id, Title: "다이소 추천 " + id, DurationSeconds: 600})
	}
	return out
}

func request() RunRequest {
	return RunRequest{Domain: testutil.DaisoDomain(), Query: "다이소 추천"}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, "다이소 추천").Return(refs("v1", "v2", "v1"), nil)
	f.source.On("FetchTranscript", mock.Anything, "v1").Return(testutil.Ptr(testutil.E2ETranscript), nil).Once()
	f.source.On("FetchTranscript", mock.Anything, "v2").Return(nil, nil).Once()
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil).Once()

	summary := f.orch.Run(context.Background(), request())

	assert.False(t, summary.Aborted)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.VideosDiscovered)
	assert.Equal(t, 1, summary.DuplicatesSkipped)
	assert.Equal(t, StageStats{Attempted: 2, Succeeded: 1, Skipped: 1}, summary.Stage(StageTranscript))
	assert.Equal(t, StageStats{Attempted: 1, Succeeded: 1}, summary.Stage(StageExtract))
	assert.Equal(t, StageStats{Attempted: 1, Succeeded: 1}, summary.Stage(StageMatch))
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Matched)
	assert.Zero(t, summary.NeedsReview)
	assert.Equal(t, 1, summary.Inserted)
	assert.Zero(t, summary.Errors.Total)

	ctx := context.Background()
	products, err := f.db.Storage.GetProductsByVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "스텐 배수구망", products[0].Name)
	require.NotNil(t, products[0].Match)
	assert.Equal(t, "1001", products[0].Match.CatalogID)
	assert.False(t, products[0].Match.NeedsManualReview)

	v1, err := f.db.Storage.GetVideo(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, model.VideoExtracted, v1.Status)
	v2, err := f.db.Storage.GetVideo(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, model.VideoDiscovered, v2.Status)

	f.source.AssertExpectations(t)
	f.completer.AssertExpectations(t)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1"), nil)
	f.source.On("FetchTranscript", mock.Anything, "v1").Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	first := f.orch.Run(context.Background(), request())
	second := f.orch.Run(context.Background(), request())

	assert.Equal(t, 1, first.Inserted)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 1, second.AlreadyPresent)
	assert.NotEqual(t, first.RunID, second.RunID)

	count, err := f.db.Storage.CountProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRun_ItemFailuresDoNotStopTheRun(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1", "v2"), nil)
	f.source.On("FetchTranscript", mock.Anything, "v1").Return(nil, errors.New("connection reset by peer"))
	f.source.On("FetchTranscript", mock.Anything, "v2").Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	summary := f.orch.Run(context.Background(), request())

	assert.False(t, summary.Aborted)
	assert.Equal(t, StageStats{Attempted: 2, Succeeded: 1, Failed: 1}, summary.Stage(StageTranscript))
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Errors.Total)
	assert.Equal(t, 1, summary.Errors.ByKind[common.KindNetwork])

	v1, err := f.db.Storage.GetVideo(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, model.VideoFailed, v1.Status)
}

func TestRun_AuthFailureAborts(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1", "v2"), nil)
	f.source.On("FetchTranscript", mock.Anything, mock.Anything).Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).
		Return("", errors.New("status 401: invalid api key")).Once()

	summary := f.orch.Run(context.Background(), request())

	assert.True(t, summary.Aborted)
	assert.Contains(t, summary.AbortReason, "auth")
	assert.Equal(t, StageStats{Attempted: 1, Failed: 1}, summary.Stage(StageExtract))
	assert.Zero(t, summary.Stage(StagePersist).Attempted)
	assert.True(t, summary.Errors.HasCritical)

	count, err := f.db.Storage.CountProducts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	f.completer.AssertExpectations(t)
}

// rejectingStore fails every write with the same error and counts calls.
type rejectingStore struct {
	err   error
	mu    sync.Mutex
	calls int
}

func (s *rejectingStore) SaveVideo(context.Context, model.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *rejectingStore) UpsertProduct(context.Context, model.CandidateProduct, *model.MatchResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return false, s.err
}

func TestRun_AuthFailureDuringPersistStopsWrites(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	store := &rejectingStore{err: errors.New("password authentication failed for user \"shop\"")}
	ext, err := extract.New(extract.Config{
		Completer: f.completer,
		Limiter:   llm.NewRateLimiter(100, 100),
	})
	require.NoError(t, err)
	orch, err := New(Deps{Source: f.source, Catalog: f.db.Storage, Store: store, Extractor: ext}, Config{})
	require.NoError(t, err)

	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1", "v2", "v3", "v4"), nil)
	f.source.On("FetchTranscript", mock.Anything, mock.Anything).Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	summary := orch.Run(context.Background(), request())

	assert.True(t, summary.Aborted)
	assert.Contains(t, summary.AbortReason, "auth")
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, StageStats{Attempted: 1, Failed: 1}, summary.Stage(StagePersist))
	assert.Equal(t, map[common.ErrorKind]int{common.KindAuth: 1}, summary.Errors.ByKind)
}

func TestRun_AuthFailureDuringFetchSkipsRemainingVideos(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{TranscriptWorkers: 1})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1", "v2", "v3", "v4"), nil)
	f.source.On("FetchTranscript", mock.Anything, mock.Anything).Return(nil, errors.New("status 401 unauthorized"))

	summary := f.orch.Run(context.Background(), request())

	assert.True(t, summary.Aborted)
	f.source.AssertNumberOfCalls(t, "FetchTranscript", 1)
	assert.Equal(t, StageStats{Attempted: 4, Failed: 1, Skipped: 3}, summary.Stage(StageTranscript))
	assert.Zero(t, summary.Stage(StagePersist).Attempted)
	f.completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestRun_AbortKeepsCandidatesExtractedEarlier(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1", "v2", "v3"), nil)
	f.source.On("FetchTranscript", mock.Anything, mock.Anything).Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil).Once()
	f.completer.On("Complete", mock.Anything, mock.Anything).
		Return("", errors.New("status 401: invalid api key")).Once()

	summary := f.orch.Run(context.Background(), request())

	assert.True(t, summary.Aborted)
	assert.Contains(t, summary.AbortReason, "auth")
	assert.Equal(t, StageStats{Attempted: 2, Succeeded: 1, Failed: 1}, summary.Stage(StageExtract))
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Inserted)

	ctx := context.Background()
	products, err := f.db.Storage.GetProductsByVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, products[0].Match)
	assert.Equal(t, "1001", products[0].Match.CatalogID)

	v2, err := f.db.Storage.GetVideo(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, model.VideoFailed, v2.Status)
	f.completer.AssertExpectations(t)
}

func TestRun_DiscoveryFailure(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(nil, errors.New("request timed out"))

	summary := f.orch.Run(context.Background(), request())

	assert.False(t, summary.Aborted)
	assert.Equal(t, StageStats{Attempted: 1, Failed: 1}, summary.Stage(StageDiscover))
	assert.Zero(t, summary.VideosDiscovered)
	assert.Equal(t, 1, summary.Errors.ByKind[common.KindTimeout])
}

func TestRun_RejectedTranscriptIsSkipped(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1"), nil)
	f.source.On("FetchTranscript", mock.Anything, "v1").Return(testutil.Ptr("짧음"), nil)

	summary := f.orch.Run(context.Background(), request())

	assert.Equal(t, StageStats{Attempted: 1, Skipped: 1}, summary.Stage(StageExtract))
	assert.Zero(t, summary.Errors.Total)
	f.completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

// searchOnlyCatalog has an empty snapshot but answers keyword searches.
type searchOnlyCatalog struct {
	entries  []model.CatalogEntry
	mu       sync.Mutex
	keywords []string
}

func (c *searchOnlyCatalog) LoadCatalog(context.Context, string) ([]model.CatalogEntry, error) {
	return nil, nil
}

func (c *searchOnlyCatalog) SearchCatalog(_ context.Context, _, keyword string) ([]model.CatalogEntry, error) {
	c.mu.Lock()
	c.keywords = append(c.keywords, keyword)
	c.mu.Unlock()
	return c.entries, nil
}

func TestRun_SearchFallback(t *testing.T) {
	f := newFixture(t, nil, Config{})
	catalog := &searchOnlyCatalog{entries: testutil.DaisoCatalog()[:1]}
	f.orch = f.build(t, catalog, Config{SearchFallback: true})

	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1"), nil)
	f.source.On("FetchTranscript", mock.Anything, "v1").Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	summary := f.orch.Run(context.Background(), request())

	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, []string{"배수구망"}, catalog.keywords)
}

func TestRun_UnmatchedCandidateIsStillPersisted(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1"), nil)
	f.source.On("FetchTranscript", mock.Anything, "v1").Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	summary := f.orch.Run(context.Background(), request())

	assert.Zero(t, summary.Matched)
	assert.Equal(t, StageStats{Attempted: 1, Skipped: 1}, summary.Stage(StageMatch))
	assert.Equal(t, 1, summary.Inserted)

	products, err := f.db.Storage.GetProductsByVideo(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].Match)
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t, testutil.DaisoCatalog(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(refs("v1"), nil)

	summary := f.orch.Run(ctx, request())

	assert.True(t, summary.Aborted)
	assert.Contains(t, summary.AbortReason, "context canceled")
	assert.Zero(t, summary.Stage(StageTranscript).Attempted)
	f.source.AssertNotCalled(t, "FetchTranscript", mock.Anything, mock.Anything)
}

func TestRun_ReportsProgress(t *testing.T) {
	var (
		mu   sync.Mutex
		last = map[Stage]int{}
	)
	f := newFixture(t, testutil.DaisoCatalog(), Config{
		Progress: func(st Stage, done, _ int) {
			mu.Lock()
			last[st] = done
			mu.Unlock()
		},
	})
	f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1", "v2", "v3"), nil)
	f.source.On("FetchTranscript", mock.Anything, mock.Anything).Return(testutil.Ptr(testutil.E2ETranscript), nil)
	f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	f.orch.Run(context.Background(), request())

	assert.Equal(t, 3, last[StageTranscript])
	assert.Equal(t, 3, last[StageExtract])
	assert.Equal(t, 3, last[StageMatch])
	assert.Equal(t, 6, last[StagePersist])
}

func TestRunSummary_JSON(t *testing.T) {
	s := newRunSummary("run-1", "daiso", "q", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.Duration = 1500 * time.Millisecond
	s.Stages[StageExtract].Attempted = 2

	out := s.JSON()
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"duration":"1.5s"`)
	assert.Contains(t, out, `"extract":{"attempted":2`)
}

// failingCatalog cannot produce a snapshot.
type failingCatalog struct{ err error }

func (c failingCatalog) LoadCatalog(context.Context, string) ([]model.CatalogEntry, error) {
	return nil, c.err
}

func (c failingCatalog) SearchCatalog(context.Context, string, string) ([]model.CatalogEntry, error) {
	return nil, c.err
}

func TestRun_CatalogUnavailableWithoutFallback(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantAborted bool
	}{
		{"unclassified failure aborts", errors.New("catalog backend unavailable"), true},
		{"storage failure is critical but persists", errors.New("sqlite: disk I/O error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, Config{})
			f.orch = f.build(t, failingCatalog{err: tt.err}, Config{})
			f.source.On("ListCandidateVideos", mock.Anything, mock.Anything).Return(refs("v1"), nil)
			f.source.On("FetchTranscript", mock.Anything, "v1").Return(testutil.Ptr(testutil.E2ETranscript), nil)
			f.completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

			summary := f.orch.Run(context.Background(), request())

			assert.True(t, summary.Errors.HasCritical)
			assert.Equal(t, tt.wantAborted, summary.Aborted)
			assert.Zero(t, summary.Matched)
			if tt.wantAborted {
				assert.Zero(t, summary.Stage(StagePersist).Attempted)
			} else {
				assert.Equal(t, 1, summary.Inserted)
			}
		})
	}
}
