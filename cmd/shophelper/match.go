package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/matcher"
	"github.com/allofdaniel/shopping-helper/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <product name>",
		Short: "Match a product mention against the catalog",
		Long: `Score a product mention against every catalog entry of the domain and
show the best candidates with their subscores. An entry is accepted only when
its total score and its name score both clear their floors.`,
		Example: `  shophelper match "스텐 배수구망" --price 2천원
  shophelper match "규조토 발매트" --category 욕실 --top 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMatch,
	}

	cmd.Flags().String("price", "", `mentioned price ("2000", "2천원", "2만원")`)
	cmd.Flags().String("category", "", "mentioned category")
	cmd.Flags().StringSlice("keyword", nil, "extra keywords (repeatable)")
	cmd.Flags().Int("top", 5, "number of ranked entries to show")

	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	priceText, _ := cmd.Flags().GetString("price")
	category, _ := cmd.Flags().GetString("category")
	keywords, _ := cmd.Flags().GetStringSlice("keyword")
	top, _ := cmd.Flags().GetInt("top")

	q := matcher.Query{Name: strings.Join(args, " "), Keywords: keywords}
	if priceText != "" {
		price, ok := extract.ParsePrice(priceText)
		if !ok {
			return common.NewUserError(fmt.Sprintf("cannot read price %q", priceText), nil)
		}
		q.Price = &price
	}
	if category != "" {
		q.Category = &category
	}

	domain, err := loadDomain()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	catalog, err := store.LoadCatalog(ctx, domain.Name)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(catalog) == 0 {
		return common.NewUserError(fmt.Sprintf("catalog for %s is empty; run 'shophelper catalog import' first", domain.Name), nil)
	}

	m := matcher.New(catalog, domain)
	best, ok := m.Match(q)
	printMatch(cmd.OutOrStdout(), q, best, ok, m.Rank(q, top))
	return nil
}

func printMatch(w io.Writer, q matcher.Query, best model.MatchResult, ok bool, ranked []model.MatchResult) {
	if ok {
		fmt.Fprintf(w, "Match for %q: %s\n", q.Name, best.String())
	} else {
		fmt.Fprintf(w, "No catalog entry accepted for %q\n", q.Name)
	}
	if len(ranked) == 0 {
		return
	}

	rows := make([][]string, 0, len(ranked))
	for _, r := range ranked {
		accepted := ""
		if r.Accepted() {
			accepted = "yes"
		}
		rows = append(rows, []string{
			r.Entry.ID,
			r.Entry.Name,
			fmt.Sprintf("%d원", r.Entry.Price),
			fmt.Sprintf("%.1f", r.TotalScore),
			fmt.Sprintf("%.1f", r.Subscores.Name),
			fmt.Sprintf("%.1f", r.Subscores.Price),
			fmt.Sprintf("%.1f", r.Subscores.Category),
			fmt.Sprintf("%.1f", r.Subscores.Popularity),
			fmt.Sprintf("%.2f", r.Confidence),
			accepted,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"SKU", "Name", "Price", "Total", "Name", "Price", "Category", "Popularity", "Confidence", "Accepted"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
}
