package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

// MockCompleter is a testify mock of service.Completer.
type MockCompleter struct {
	mock.Mock
}

// Complete records the call and returns the configured answer.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockVideoSource is a testify mock of service.VideoSource.
type MockVideoSource struct {
	mock.Mock
}

// ListCandidateVideos records the call and returns the configured listing.
func (m *MockVideoSource) ListCandidateVideos(ctx context.Context, query string) ([]model.VideoRef, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VideoRef), args.Error(1)
}

// FetchTranscript records the call and returns the configured transcript.
func (m *MockVideoSource) FetchTranscript(ctx context.Context, videoID string) (*string, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

// FetchChapterMetadata records the call and returns the configured chapters.
func (m *MockVideoSource) FetchChapterMetadata(ctx context.Context, videoID string) ([]model.Chapter, bool, error) {
	args := m.Called(ctx, videoID)
	var chapters []model.Chapter
	if args.Get(0) != nil {
		chapters = args.Get(0).([]model.Chapter)
	}
	return chapters, args.Bool(1), args.Error(2)
}
