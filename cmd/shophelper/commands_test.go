package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/shopping-helper/internal/backfill"
	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/engine"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/storage"
)

func useTempConfig(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "shophelper.db")
	viper.Reset()
	viper.Set("domain", "daiso")
	viper.Set("storage.driver", "sqlite")
	viper.Set("storage.path", dbPath)
	t.Cleanup(viper.Reset)
	return dbPath
}

func TestParseCatalogFile(t *testing.T) {
	t.Run("mapping with entries", func(t *testing.T) {
		entries, err := parseCatalogFile([]byte(`
entries:
  - id: 1001
    name: 스테인레스 배수구망
    price: 2,000원
    category: 주방
    popularity: 1500
    best: true
  - id: "1002"
    name: 실리콘 주걱
    price: 1000
`))
		require.NoError(t, err)
		assert.Equal(t, []model.CatalogEntry{
			{ID: "1001", Name: "스테인레스 배수구망", Price: 2000, Category: "주방", PopularityScore: 1500, IsBest: true},
			{ID: "1002", Name: "실리콘 주걱", Price: 1000},
		}, entries)
	})

	t.Run("json list", func(t *testing.T) {
		entries, err := parseCatalogFile([]byte(`[{"id":"2001","name":"규조토 발매트","price":"5천원"}]`))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 5000, entries[0].Price)
	})

	errorCases := map[string]string{
		"empty":          "",
		"no entries":     "entries: []",
		"missing name":   "- id: x",
		"duplicate id":   "- {id: a, name: x}\n- {id: a, name: y}",
		"bad price":      "- {id: a, name: x, price: 비쌈}",
		"scalar":         "hello",
		"malformed yaml": "entries: [",
	}
	for name, input := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := parseCatalogFile([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{30 * time.Hour, "yesterday"},
		{4 * 24 * time.Hour, "4 days ago"},
		{30 * 24 * time.Hour, "2026-04-10 12:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRelativeTime(now.Add(-tt.ago), now))
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Stage", "Count"}, [][]string{{"discover", "3"}, {"extract"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "discover")
	assert.Contains(t, out, "extract")
	assert.Equal(t, "", renderTable(nil, nil, nil))
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "Continue?"))
	assert.True(t, confirm(strings.NewReader("Yes\n"), &out, "Continue?"))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "Continue?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Continue?"))
	assert.Contains(t, out.String(), "(y/N)")
}

func TestPrintSummary(t *testing.T) {
	s := &engine.RunSummary{
		RunID:  "run-1",
		Domain: "daiso",
		Stages: map[engine.Stage]*engine.StageStats{
			engine.StageDiscover: {Attempted: 2, Succeeded: 2},
		},
		Errors: common.ErrorSummary{
			Total:   1,
			ByKind:  map[common.ErrorKind]int{common.KindTimeout: 1},
			Samples: []string{"[timeout/medium] fetch_transcript (v2): deadline exceeded"},
		},
		Inserted:    3,
		Aborted:     true,
		AbortReason: "context: context canceled",
	}
	var out bytes.Buffer
	printSummary(&out, s)
	text := out.String()
	assert.Contains(t, text, "run-1")
	assert.Contains(t, text, "discover")
	assert.Contains(t, text, "timeout")
	assert.Contains(t, text, "deadline exceeded")
	assert.Contains(t, text, "Run aborted")
}

func TestPrintBackfillResult(t *testing.T) {
	res := &backfill.Result{
		Phases: []backfill.PhaseResult{
			{Phase: backfill.PhaseTranscript, Method: model.MethodExistingTranscript, Considered: 3, Resolved: 1},
			{Phase: backfill.PhaseInterpolate, Method: model.MethodPositionInterpolated, Considered: 2, Resolved: 2},
		},
		Unresolved: 3,
		DryRun:     true,
	}
	var out bytes.Buffer
	printBackfillResult(&out, res)
	assert.Contains(t, out.String(), "position-interpolated")
	assert.Contains(t, out.String(), "Would resolve 3 of 3 products")
}

func TestCheckTranscriptCommand(t *testing.T) {
	useTempConfig(t)
	path := filepath.Join(t.TempDir(), "t.txt")
	require.NoError(t, os.WriteFile(path, []byte("<p>다이소에서 파는 스텐 배수구망 2천원인데 진짜 좋아요 강추! 주방에서 쓰기 좋아요</p>"), 0600))

	cmd := checkTranscriptCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "accepted")

	cmd = checkTranscriptCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("짧음"))
	cmd.SetArgs([]string{"-"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "too_short")
}

func TestCatalogImportCommand(t *testing.T) {
	dbPath := useTempConfig(t)
	file := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- {id: \"1001\", name: 스테인레스 배수구망, price: 2000, best: true}\n"), 0600))

	cmd := catalogCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"import", file})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Imported 1 catalog entries into daiso")

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	entries, err := store.LoadCatalog(context.Background(), "daiso")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsBest)
}

func TestMigrateStatusCommand(t *testing.T) {
	useTempConfig(t)
	cmd := migrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "0 products stored")

	cmd = migrateCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--status"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Schema version: 3 (latest 3)")
}

func TestReviewCommand(t *testing.T) {
	dbPath := useTempConfig(t)
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveVideo(ctx, model.VideoRecord{ID: "v1", Title: "다이소 주방템 추천", Status: model.VideoExtracted}))
	price := 2000
	_, err = store.UpsertProduct(ctx,
		model.CandidateProduct{VideoID: "v1", Name: "스텐 배수구망", Price: &price, Confidence: 0.9, Recommended: true},
		&model.MatchResult{
			Entry:             model.CatalogEntry{ID: "1001", Name: "스테인레스 배수구망"},
			Subscores:         model.Subscores{Name: 22, Price: 20},
			TotalScore:        42,
			Confidence:        0.55,
			NeedsManualReview: true,
		})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cmd := reviewCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "다이소 주방템 추천")
	assert.Contains(t, out.String(), "1001")
	assert.Contains(t, out.String(), "1 matches need review")
}

func TestPrintReviewEmpty(t *testing.T) {
	var out bytes.Buffer
	printReview(&out, nil, nil)
	assert.Equal(t, "No matches need review.\n", out.String())
}
