package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "List matches that need manual review",
		Long: `List stored products whose catalog match was accepted with low
confidence. These are the matches a person should confirm before they are
published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sqliteStore, err := sqliteStorage(store, "review listings")
			if err != nil {
				return err
			}
			products, err := sqliteStore.GetProductsNeedingReview(ctx)
			if err != nil {
				return fmt.Errorf("failed to load products: %w", err)
			}
			videos, err := sqliteStore.ListVideos(ctx)
			if err != nil {
				return fmt.Errorf("failed to load videos: %w", err)
			}

			titles := make(map[string]string, len(videos))
			for _, v := range videos {
				titles[v.ID] = v.Title
			}
			printReview(cmd.OutOrStdout(), products, titles)
			return nil
		},
	}
}

func printReview(w io.Writer, products []model.StoredProduct, titles map[string]string) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No matches need review.")
		return
	}

	rows := make([][]string, 0, len(products))
	for _, p := range products {
		video := p.VideoID
		if title := titles[p.VideoID]; title != "" {
			video = title
		}
		catalogID, score, confidence := "-", "-", "-"
		if p.Match != nil {
			catalogID = p.Match.CatalogID
			score = strconv.FormatFloat(p.Match.TotalScore, 'f', 1, 64)
			confidence = strconv.FormatFloat(p.Match.Confidence, 'f', 2, 64)
		}
		rows = append(rows, []string{video, p.Name, formatPrice(p.Price), catalogID, score, confidence})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Video", "Product", "Price", "SKU", "Score", "Confidence"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight},
	))
	fmt.Fprintf(w, "%d matches need review\n", len(products))
}
