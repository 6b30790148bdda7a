package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export raw visitor records",
	Long: `Export a test's raw visitor records in CSV or JSON format.

Examples:
  pagesplit export hero --format csv > hero-data.csv
  pagesplit export hero --format json > hero-data.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	name := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		// Verify test exists
		if _, err := s.GetTest(ctx, name); err != nil {
			if err == store.ErrNotFound {
				return fmt.Errorf("test '%s' not found", name)
			}
			return fmt.Errorf("failed to get test: %w", err)
		}

		records, err := s.ListVisitors(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get visitors: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(records)
		}
		return exportJSON(records)
	})
}

func exportCSV(records []*store.VisitorRecord) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"visited_at", "visitor_id", "variant", "converted", "converted_at"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		convertedAt := ""
		if r.ConvertedAt != nil {
			convertedAt = strconv.FormatInt(r.ConvertedAt.Unix(), 10)
		}
		row := []string{
			strconv.FormatInt(r.VisitedAt.Unix(), 10),
			r.VisitorID,
			r.VariantShown,
			strconv.FormatBool(r.Converted),
			convertedAt,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Visitors []jsonVisitor `json:"visitors"`
}

type jsonVisitor struct {
	VisitedAt   int64           `json:"visited_at"`
	VisitorID   string          `json:"visitor_id"`
	Variant     string          `json:"variant"`
	Converted   bool            `json:"converted"`
	ConvertedAt *int64          `json:"converted_at,omitempty"`
	Data        json.RawMessage `json:"conversion_data,omitempty"`
}

func exportJSON(records []*store.VisitorRecord) error {
	export := jsonExport{
		Visitors: make([]jsonVisitor, len(records)),
	}

	for i, r := range records {
		v := jsonVisitor{
			VisitedAt: r.VisitedAt.Unix(),
			VisitorID: r.VisitorID,
			Variant:   r.VariantShown,
			Converted: r.Converted,
			Data:      r.ConversionData,
		}
		if r.ConvertedAt != nil {
			ts := r.ConvertedAt.Unix()
			v.ConvertedAt = &ts
		}
		export.Visitors[i] = v
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
