package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <name>",
	Short: "Shift traffic toward the winning variant",
	Long: `Run one auto-optimization step on a running test.

If the flat-gap significance check passes and the winner's lift exceeds
10%, the traffic split moves 10 points toward the winner. The winning
variant's share is capped at 80%.`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		eng := engine.New(s)

		result := eng.AutoOptimize(context.Background(), name)
		if !result.Success {
			fmt.Printf("No change: %s\n", result.Message)
			return nil
		}

		fmt.Printf("%s\n", result.Message)
		fmt.Printf("  New split: %d%% to variant b\n", result.NewSplit)
		fmt.Printf("  Observed improvement: %+.1f%%\n", result.Improvement)
		return nil
	})
}
