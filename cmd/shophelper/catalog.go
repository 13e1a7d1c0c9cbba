package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/model"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the retailer catalog",
		Long: `Import and inspect the catalog entries products are matched against.
Each domain has its own catalog.`,
	}
	cmd.AddCommand(catalogImportCmd())
	cmd.AddCommand(catalogSearchCmd())
	return cmd
}

func catalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import catalog entries from a YAML or JSON file",
		Long: `Import catalog entries for the selected domain. The file holds either a
list of entries or a mapping with an "entries" list. Existing entries with the
same id are replaced.

  entries:
    - id: "1001"
      name: 스테인레스 배수구망
      price: 2,000원
      category: 주방
      popularity: 1500
      best: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read catalog file: %w", err)
			}
			entries, err := parseCatalogFile(data)
			if err != nil {
				return common.NewUserError("invalid catalog file "+args[0], err)
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

			n, err := store.SaveCatalogEntries(ctx, domain.Name, entries)
			if err != nil {
				return fmt.Errorf("failed to save catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d catalog entries into %s\n", n, domain.Name)
			return nil
		},
	}
}

func catalogSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search catalog entries by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			domain, err := loadDomain()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.SearchCatalog(ctx, domain.Name, args[0])
			if err != nil {
				return fmt.Errorf("failed to search catalog: %w", err)
			}
			printCatalog(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func printCatalog(w io.Writer, entries []model.CatalogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No catalog entries found.")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		best := ""
		if e.IsBest {
			best = "best"
		}
		rows = append(rows, []string{e.ID, e.Name, e.Category, fmt.Sprintf("%d원", e.Price), strconv.Itoa(e.PopularityScore), best})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"SKU", "Name", "Category", "Price", "Popularity", ""},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

// catalogRecord is one entry of an import file.
type catalogRecord struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Category   string     `yaml:"category"`
	ImageURL   string     `yaml:"image_url"`
	ProductURL string     `yaml:"product_url"`
	Price      priceField `yaml:"price"`
	Popularity int        `yaml:"popularity"`
	Best       bool       `yaml:"best"`
}

// priceField accepts plain numbers and Korean price notations.
type priceField int

func (p *priceField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: price must be a scalar", node.Line)
	}
	v, ok := extract.ParsePrice(node.Value)
	if !ok {
		return fmt.Errorf("line %d: cannot read price %q", node.Line, node.Value)
	}
	*p = priceField(v)
	return nil
}

var errEmptyCatalog = errors.New("catalog file has no entries")

// parseCatalogFile decodes a YAML or JSON catalog file.
func parseCatalogFile(data []byte) ([]model.CatalogEntry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errEmptyCatalog
	}

	var records []catalogRecord
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
	case yaml.MappingNode:
		var file struct {
			Entries []catalogRecord `yaml:"entries"`
		}
		if err := doc.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
		records = file.Entries
	default:
		return nil, fmt.Errorf("unexpected catalog document at line %d", doc.Line)
	}
	if len(records) == 0 {
		return nil, errEmptyCatalog
	}

	entries := make([]model.CatalogEntry, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" || r.Name == "" {
			return nil, fmt.Errorf("entry %d: id and name are required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("entry %d: duplicate id %s", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		entries = append(entries, model.CatalogEntry{
			ID:              r.ID,
			Name:            r.Name,
			Category:        r.Category,
			ImageURL:        r.ImageURL,
			ProductURL:      r.ProductURL,
			Price:           int(r.Price),
			PopularityScore: r.Popularity,
			IsBest:          r.Best,
		})
	}
	return entries, nil
}
