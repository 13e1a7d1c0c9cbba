package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/allofdaniel/shopping-helper/internal/backfill"
	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/storage"
)

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fill in missing product mention timestamps",
		Long: `Resolve when each stored product was mentioned, for products that have
no timestamp yet. Four strategies run in order:

  1. inline timestamps in the transcript near the product name
  2. chapter titles from the video source
  3. "MM:SS text" lines in the video description
  4. interpolation by position within the video (marked as estimated)

Each strategy commits before the next one starts. With the sqlite driver an
automatic checkpoint is taken first.`,
		Example: `  # Preview without writing anything
  shophelper backfill --dry-run

  # Use chapter data from the video manifest
  shophelper backfill --source-dir ./videos`,
		RunE: runBackfill,
	}

	cmd.Flags().Bool("dry-run", false, "report what would change without writing")
	cmd.Flags().String("source-dir", "", "video manifest directory used for chapter data")
	cmd.Flags().Bool("no-checkpoint", false, "skip the automatic checkpoint")

	return cmd
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	opts := backfill.Options{Logger: slog.Default(), DryRun: dryRun}
	src, err := openSource(cmd)
	switch {
	case err == nil:
		opts.Chapters = src
	case errors.Is(err, common.ErrMissingConfig):
		slog.Info("No video source configured, skipping chapter lookup")
	default:
		return err
	}

	if !dryRun && !noCheckpoint {
		if s, ok := store.(*storage.SQLiteStorage); ok {
			if err := autoCheckpoint(cmd, s); err != nil {
				return err
			}
		}
	}

	reconciler, err := backfill.New(store, opts)
	if err != nil {
		return err
	}
	res, err := reconciler.Run(ctx)
	if res != nil {
		printBackfillResult(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return fmt.Errorf("backfill stopped: %w", err)
	}
	return nil
}

func autoCheckpoint(cmd *cobra.Command, s *storage.SQLiteStorage) error {
	manager, err := s.NewCheckpointManager()
	if errors.Is(err, storage.ErrCheckpointUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	info, err := manager.AutoCheckpoint(cmd.Context(), "backfill")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint before backfill: %w", err)
	}
	slog.Info("Created checkpoint", "id", info.ID, "size", formatFileSize(info.FileSize))
	return nil
}

func printBackfillResult(w io.Writer, res *backfill.Result) {
	rows := make([][]string, 0, len(res.Phases))
	for _, p := range res.Phases {
		rows = append(rows, []string{
			p.Phase.String(),
			string(p.Method),
			strconv.Itoa(p.Considered),
			strconv.Itoa(p.Resolved),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Phase", "Method", "Unresolved before", "Resolved"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))

	verb := "Resolved"
	if res.DryRun {
		verb = "Would resolve"
	}
	fmt.Fprintf(w, "%s %d of %d products; %d still without a timestamp\n",
		verb, res.Resolved(), res.Unresolved, res.Remaining)
	if res.Errors.Total > 0 {
		fmt.Fprintf(w, "%d lookups failed:\n", res.Errors.Total)
		for _, sample := range res.Errors.Samples {
			fmt.Fprintf(w, "  %s\n", sample)
		}
	}
}
