package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tests",
	Long:  `List all A/B tests with their status and aggregate counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		tests, err := s.ListTests(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tests: %w", err)
		}

		if len(tests) == 0 {
			fmt.Println("No tests yet.")
			fmt.Println()
			fmt.Println("Create one with: pagesplit create <name>")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tSPLIT\tVISITORS\tCONVERSIONS\tCREATED")

		for _, test := range tests {
			counts, err := s.VariantCounts(ctx, test.Name)
			if err != nil {
				return fmt.Errorf("failed to get counts for test %s: %w", test.Name, err)
			}

			totalVisitors := 0
			totalConversions := 0
			for _, c := range counts {
				totalVisitors += c.Visitors
				totalConversions += c.Conversions
			}

			fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\t%s\n",
				test.Name,
				strings.ToUpper(string(test.Status)),
				test.TrafficSplit,
				formatNumber(totalVisitors),
				formatNumber(totalConversions),
				test.CreatedAt.Format("2006-01-02"),
			)
		}

		w.Flush()
		return nil
	})
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
