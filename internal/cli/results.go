package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show detailed results for a test",
	Long:  `Show per-variant counts, conversion rates, lift, and both significance verdicts.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		eng := engine.New(s)

		report, err := eng.Results(context.Background(), name)
		if err != nil {
			if errors.Is(err, engine.ErrTestNotFound) {
				return fmt.Errorf("test '%s' not found", name)
			}
			return fmt.Errorf("failed to get results: %w", err)
		}

		fmt.Printf("TEST: %s\n", report.Name)
		fmt.Printf("STATUS: %s\n", strings.ToUpper(string(report.Status)))
		fmt.Printf("DURATION: %d days\n", report.DurationDays)
		fmt.Println()

		fmt.Println("VARIANT   VISITORS   CONVERSIONS   RATE")
		fmt.Println(strings.Repeat("─", 45))
		for _, v := range report.Performance.Variants {
			label := v.Variant
			if v.Variant == "a" {
				label = "a (control)"
			}
			fmt.Printf("%-10s %-10d %-13d %.2f%%\n", label, v.Visitors, v.Conversions, v.ConversionRate)
		}
		fmt.Println()

		st := report.Statistics
		fmt.Printf("Lift: %+.1f%%\n", st.Lift)
		fmt.Printf("Chi-squared: %.3f (p=%.3f, %.1f%% confidence)\n",
			st.ChiSquared.ChiSquared, st.ChiSquared.PValue, st.ChiSquared.Confidence)
		fmt.Println()

		// The two significance rules disagree in general; show both.
		fmt.Printf("Significant (chi-squared):    %v\n", st.ChiSquared.Significant)
		fmt.Printf("Significant (2-point gap):    %v\n", st.SignificantByGap)
		fmt.Println()

		if st.Winner.VariantID != "" {
			fmt.Printf("Winner: variant %s (%s)\n", st.Winner.VariantID, st.Winner.Reason)
		} else {
			fmt.Printf("No winner yet: %s\n", st.Winner.Reason)
		}
		fmt.Printf("Recommendation: %s\n", st.Winner.Recommendation)

		return nil
	})
}
