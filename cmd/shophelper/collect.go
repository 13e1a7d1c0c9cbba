package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/config"
	"github.com/allofdaniel/shopping-helper/internal/engine"
	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/llm"
)

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect [query]",
		Short: "Run a collection pass over the video source",
		Long: `Discover videos matching the query, extract the products each creator
recommends, match them against the domain's catalog and store them.

Products already stored for a video are left untouched, so a run can be
repeated safely after a partial failure.`,
		Example: `  # Collect every video in the manifest for the daiso catalog
  shophelper collect --source-dir ./videos

  # Only videos mentioning both words, with JSON output
  shophelper collect "다이소 주방" --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCollect,
	}

	cmd.Flags().String("source-dir", "", "directory holding the video manifest")
	cmd.Flags().Bool("json", false, "print the run summary as JSON")
	cmd.Flags().Bool("no-progress", false, "disable progress bars")
	cmd.Flags().Bool("search-fallback", true, "query the catalog store when the snapshot has no match")

	return cmd
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	fallback, _ := cmd.Flags().GetBool("search-fallback")

	domain, err := loadDomain()
	if err != nil {
		return err
	}
	src, err := openSource(cmd)
	if err != nil {
		return err
	}
	llmSettings, err := config.LoadLLMSettings()
	if err != nil {
		return common.NewUserError("completion client is not configured", err)
	}
	client, err := llm.NewClient(llmSettings.Client)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var cache *llm.ResponseCache
	if llmSettings.CacheTTL > 0 {
		cache = llm.NewResponseCache(llmSettings.CacheTTL)
		defer cache.Close()
	}
	limiter := llm.NewRateLimiterPerMinute(llmSettings.RateLimit, llmSettings.RateCapacity)
	extractor, err := extract.New(extract.Config{
		Completer: client,
		Limiter:   limiter,
		Cache:     cache,
		Retry:     llmSettings.Retry,
	})
	if err != nil {
		return err
	}

	settings := config.LoadCollectSettings()
	progress := newStageProgress(cmd.ErrOrStderr(), !noProgress && !asJSON)
	orch, err := engine.New(engine.Deps{
		Source:    src,
		Catalog:   store,
		Store:     store,
		Extractor: extractor,
	}, engine.Config{
		Logger:            slog.Default(),
		Progress:          progress.update,
		TranscriptWorkers: settings.TranscriptWorkers,
		MatchWorkers:      settings.MatchWorkers,
		CallTimeout:       settings.CallTimeout,
		SearchFallback:    fallback,
	})
	if err != nil {
		return err
	}

	summary := orch.Run(ctx, engine.RunRequest{Domain: domain, Query: query})
	progress.finish()

	out := cmd.OutOrStdout()
	if asJSON {
		fmt.Fprintln(out, summary.JSON())
	} else {
		printSummary(out, summary)
		stats := limiter.Stats()
		state := limiter.State()
		fmt.Fprintf(out, "Completion calls: %d (%d throttled, waited %s, %.0f/%.0f tokens left)\n",
			stats.TotalRequests, stats.TotalWaits, stats.TotalWaitTime.Round(time.Millisecond),
			state.Tokens, state.Capacity)
	}

	if summary.Aborted {
		return common.NewUserError("collection "+summary.AbortReason, common.ErrRunAborted)
	}
	return nil
}

// stageProgress shows one bar per stage, replacing it when the stage changes.
type stageProgress struct {
	w       io.Writer
	bar     *progressbar.ProgressBar
	stage   engine.Stage
	mu      sync.Mutex
	enabled bool
}

func newStageProgress(w io.Writer, enabled bool) *stageProgress {
	if f, ok := w.(*os.File); ok && enabled {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
			enabled = false
		}
	}
	return &stageProgress{w: w, enabled: enabled}
}

func (p *stageProgress) update(stage engine.Stage, done, total int) {
	if !p.enabled || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.stage != stage {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.stage = stage
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]%-10s[reset]", stage)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(p.w)
			}),
		)
	}
	if err := p.bar.Set(done); err != nil {
		slog.Debug("Failed to update progress bar", "error", err)
	}
}

func (p *stageProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func printSummary(w io.Writer, s *engine.RunSummary) {
	fmt.Fprintf(w, "Run %s (%s, query %q) finished in %s\n", s.RunID, s.Domain, s.Query, s.Duration.Round(time.Millisecond))

	rows := make([][]string, 0, len(engine.Stages))
	for _, st := range engine.Stages {
		c := s.Stage(st)
		rows = append(rows, []string{
			string(st),
			strconv.Itoa(c.Attempted),
			strconv.Itoa(c.Succeeded),
			strconv.Itoa(c.Failed),
			strconv.Itoa(c.Skipped),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Stage", "Attempted", "Succeeded", "Failed", "Skipped"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))

	fmt.Fprintln(w, renderTable(
		[]string{"Result", "Count"},
		[][]string{
			{"Videos discovered", strconv.Itoa(s.VideosDiscovered)},
			{"Duplicate videos", strconv.Itoa(s.DuplicatesSkipped)},
			{"Candidates", strconv.Itoa(s.Candidates)},
			{"Matched", strconv.Itoa(s.Matched)},
			{"Needs review", strconv.Itoa(s.NeedsReview)},
			{"Inserted", strconv.Itoa(s.Inserted)},
			{"Already stored", strconv.Itoa(s.AlreadyPresent)},
		},
		[]columnAlignment{alignLeft, alignRight},
	))

	if s.Errors.Total > 0 {
		fmt.Fprintln(w, renderTable([]string{"Error kind", "Count"}, errorRows(s.Errors), []columnAlignment{alignLeft, alignRight}))
		for _, sample := range s.Errors.Samples {
			fmt.Fprintf(w, "  %s\n", sample)
		}
	}
	if s.Aborted {
		fmt.Fprintf(w, "Run aborted: %s\n", s.AbortReason)
	}
}

func errorRows(summary common.ErrorSummary) [][]string {
	kinds := make([]string, 0, len(summary.ByKind))
	for k := range summary.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, k := range kinds {
		rows = append(rows, []string{k, strconv.Itoa(summary.ByKind[common.ErrorKind(k)])})
	}
	return rows
}
