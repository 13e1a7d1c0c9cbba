package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/config"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/pgstore"
	"github.com/allofdaniel/shopping-helper/internal/service"
	"github.com/allofdaniel/shopping-helper/internal/source"
	"github.com/allofdaniel/shopping-helper/internal/storage"
)

// initStorage opens the configured backend and brings its schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	settings, err := config.LoadStorageSettings()
	if err != nil {
		return nil, common.NewUserError("storage is not configured", err)
	}

	var store service.Storage
	switch settings.Driver {
	case config.DriverPostgres:
		store, err = pgstore.Connect(ctx, settings.DatabaseURL, settings.MaxConns)
	default:
		store, err = storage.NewSQLiteStorage(settings.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", settings.Driver, err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// sqliteStorage narrows store to the SQLite backend for features the
// Postgres store does not offer.
func sqliteStorage(store service.Storage, feature string) (*storage.SQLiteStorage, error) {
	s, ok := store.(*storage.SQLiteStorage)
	if !ok {
		return nil, common.NewUserError(feature+" are only available with the sqlite storage driver", nil)
	}
	return s, nil
}

// loadDomain resolves the --domain profile, including any configured
// profiles file.
func loadDomain() (model.DomainContext, error) {
	domains, err := config.LoadDomains(viper.GetString("domains.file"))
	if err != nil {
		return model.DomainContext{}, err
	}
	return config.Domain(domains, viper.GetString("domain"))
}

// openSource opens the video manifest directory from --source-dir or
// source.dir.
func openSource(cmd *cobra.Command) (*source.FileSource, error) {
	dir, _ := cmd.Flags().GetString("source-dir")
	if dir == "" {
		dir = viper.GetString("source.dir")
	}
	dir = config.ExpandPath(dir)
	if dir == "" {
		return nil, common.NewUserError("no video source: set --source-dir or source.dir", common.ErrMissingConfig)
	}
	return source.Open(dir)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func formatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatPrice(price *int) string {
	if price == nil {
		return "-"
	}
	return fmt.Sprintf("%d원", *price)
}

// confirm asks a yes/no question on w and reads the answer from r.
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s (y/N) ", question)
	answer, _ := bufio.NewReader(r).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
}
