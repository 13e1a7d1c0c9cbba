package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/allofdaniel/shopping-helper/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete snapshots of the sqlite database.

The backfill command takes an automatic checkpoint before writing; only the
five most recent automatic checkpoints are kept.`,
		Example: `  # Snapshot before importing a new catalog
  shophelper checkpoint create --tag pre-catalog-2026

  # List all checkpoints
  shophelper checkpoint list

  # Roll back
  shophelper checkpoint restore pre-catalog-2026`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// checkpointManager opens the storage and returns its checkpoint manager
// together with a function that closes the storage.
func checkpointManager(cmd *cobra.Command) (*storage.CheckpointManager, func(), error) {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = store.Close() }

	sqliteStore, err := sqliteStorage(store, "checkpoints")
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	manager, err := sqliteStore.NewCheckpointManager()
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return manager, closeStore, nil
}

func createCheckpointCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, closeStore, err := checkpointManager(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			info, err := manager.Create(cmd.Context(), tag, description)
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created checkpoint %s (%s)\n", info.ID, formatFileSize(info.FileSize))
			if info.Description != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  Description: %s\n", info.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "checkpoint name (generated when empty)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, closeStore, err := checkpointManager(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			checkpoints, err := manager.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}
			if len(checkpoints) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints found.")
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(checkpoints))
			for _, cp := range checkpoints {
				kind := "manual"
				if cp.IsAuto {
					kind = "auto"
				}
				rows = append(rows, []string{
					cp.ID,
					formatRelativeTime(cp.CreatedAt, now),
					formatFileSize(cp.FileSize),
					strconv.Itoa(cp.Videos),
					strconv.Itoa(cp.Products),
					strconv.Itoa(cp.CatalogSize),
					kind,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Created", "Size", "Videos", "Products", "Catalog", "Type"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore the database from a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			manager, closeStore, err := checkpointManager(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if !force && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("This will replace the current database with checkpoint %s. Continue?", id)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled.")
				return nil
			}

			if err := manager.Restore(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored from checkpoint %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			manager, closeStore, err := checkpointManager(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if !force && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("This will permanently delete checkpoint %s. Continue?", id)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
				return nil
			}

			if err := manager.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete checkpoint: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted checkpoint %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func formatRelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 48*time.Hour:
		return "yesterday"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02 15:04")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
