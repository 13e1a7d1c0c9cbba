package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/llm"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
	"github.com/allofdaniel/shopping-helper/internal/testutil"
)

func newTestExtractor(t *testing.T, completer service.Completer, cache *llm.ResponseCache) (*Extractor, *common.Aggregator) {
	t.Helper()
	agg := common.NewAggregator()
	e, err := New(Config{
		Completer:  completer,
		Limiter:    llm.NewRateLimiter(100, 100),
		Cache:      cache,
		Aggregator: agg,
		Retry:      service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	return e, agg
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Limiter: llm.NewRateLimiter(1, 1)})
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = New(Config{Completer: &testutil.MockCompleter{}})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestExtract_EndToEnd(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, testutil.E2ETranscript) && strings.Contains(p, "1000원 ~ 5000원")
	})).Return(testutil.E2EResponse, nil).Once()

	e, agg := newTestExtractor(t, completer, nil)
	got := e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())

	require.Len(t, got, 1)
	assert.Equal(t, "스텐 배수구망", got[0].Name)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 2000, *got[0].Price)
	assert.GreaterOrEqual(t, got[0].Confidence, model.MinCandidateConfidence)
	assert.Zero(t, agg.Len())
	completer.AssertExpectations(t)
}

func TestExtract_ConfidenceFloor(t *testing.T) {
	response := `[
		{"name":"스텐 배수구망","price":2000,"confidence":0.9,"recommended":true},
		{"name":"실리콘 주걱","price":1000,"confidence":0.49,"recommended":true},
		{"name":"규조토 발매트","price":5000,"confidence":0.95,"recommended":false},
		{"name":"극세사 청소포","price":1000,"confidence":0.5,"recommended":true}
	]`
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return(response, nil)

	e, _ := newTestExtractor(t, completer, nil)
	got := e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())

	require.Len(t, got, 2)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Confidence, 0.5)
		assert.True(t, c.Recommended)
	}
	assert.Equal(t, "극세사 청소포", got[1].Name)
}

func TestExtract_RejectedTranscriptSkipsCall(t *testing.T) {
	completer := &testutil.MockCompleter{}
	e, _ := newTestExtractor(t, completer, nil)

	got := e.Extract(context.Background(), "짧은 글", testutil.DaisoDomain())
	assert.Empty(t, got)
	assert.NotNil(t, got)
	completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	_, err := e.ExtractVideo(context.Background(), testutil.Video("v1", testutil.Ptr("짧은 글"), 60), testutil.DaisoDomain(), nil)
	assert.ErrorIs(t, err, ErrTranscriptRejected)

	_, err = e.ExtractVideo(context.Background(), testutil.Video("v2", nil, 60), testutil.DaisoDomain(), nil)
	assert.ErrorIs(t, err, common.ErrNoTranscript)
}

func TestExtract_MalformedResponse(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return("죄송하지만 추출할 수 없습니다.", nil)

	e, agg := newTestExtractor(t, completer, nil)
	got := e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())
	assert.Empty(t, got)
	assert.Zero(t, agg.Len(), "malformed output is logged, not recorded")
}

func TestExtract_RetriesTransientFailures(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("OpenAI API error (status 503): overloaded")).Twice()
	completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil).Once()

	e, agg := newTestExtractor(t, completer, nil)
	got := e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())

	require.Len(t, got, 1)
	assert.Zero(t, agg.Len())
	completer.AssertNumberOfCalls(t, "Complete", 3)
}

func TestExtract_WaitsOnLimiterOnlyWhenBucketIsEmpty(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil)

	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var waits []time.Duration
	limiter := llm.NewRateLimiter(1, 2, llm.WithClock(
		func() time.Time { return frozen },
		func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	))
	e, err := New(Config{Completer: completer, Limiter: limiter})
	require.NoError(t, err)

	e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())
	assert.Empty(t, waits, "a full bucket serves the first call at once")

	e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, waits)

	stats := limiter.Stats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.TotalWaits)
	completer.AssertNumberOfCalls(t, "Complete", 2)
}

func TestExtract_FailureIsRecordedNotRaised(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("request failed: connection refused"))

	e, agg := newTestExtractor(t, completer, nil)
	got := e.Extract(context.Background(), testutil.E2ETranscript, testutil.DaisoDomain())

	assert.Empty(t, got)
	completer.AssertNumberOfCalls(t, "Complete", 3)
	require.Equal(t, 1, agg.Len())
	rec := agg.Records()[0]
	assert.Equal(t, common.KindNetwork, rec.Kind)
	assert.True(t, rec.Retryable)
	assert.Equal(t, "extract", rec.Context.Operation)
}

func TestExtractVideo_AuthFailure(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("OpenAI API error (status 401): invalid key"))

	e, _ := newTestExtractor(t, completer, nil)
	runAgg := common.NewAggregator()
	video := testutil.Video("vid-auth", testutil.Ptr(testutil.E2ETranscript), 300)

	got, err := e.ExtractVideo(context.Background(), video, testutil.DaisoDomain(), runAgg)
	require.Error(t, err)
	assert.Empty(t, got)
	completer.AssertNumberOfCalls(t, "Complete", 1)
	assert.True(t, runAgg.ShouldAbort())
	assert.Equal(t, "vid-auth", runAgg.Records()[0].Context.ItemID)
}

func TestExtractVideo_StampsVideoAndUsesCache(t *testing.T) {
	completer := &testutil.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return(testutil.E2EResponse, nil).Once()

	cache := llm.NewResponseCache(time.Minute)
	defer cache.Close()
	e, _ := newTestExtractor(t, completer, cache)
	video := testutil.Video("vid-1", testutil.Ptr(testutil.E2ETranscript), 300)

	for i := 0; i < 2; i++ {
		got, err := e.ExtractVideo(context.Background(), video, testutil.DaisoDomain(), nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "vid-1", got[0].VideoID)
	}
	completer.AssertNumberOfCalls(t, "Complete", 1)
}
