package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

// Lifecycle commands: draft -> running -> completed, running <-> paused,
// anything -> archived.

func init() {
	rootCmd.AddCommand(
		lifecycleCmd("start", "Start a draft test", "Move a draft test into the running state and set its start time.",
			func(eng *engine.Engine, ctx context.Context, name string) error { return eng.Start(ctx, name) },
			"Test '%s' is now running.\n"),
		lifecycleCmd("pause", "Pause a running test", "Pause a running test. Visitors see control while paused.",
			func(eng *engine.Engine, ctx context.Context, name string) error { return eng.Pause(ctx, name) },
			"Test '%s' paused.\n"),
		lifecycleCmd("resume", "Resume a paused test", "Resume a paused test. The original start time is kept.",
			func(eng *engine.Engine, ctx context.Context, name string) error { return eng.Resume(ctx, name) },
			"Test '%s' resumed.\n"),
		lifecycleCmd("complete", "Complete a test", "End a test: set its end time and mark it completed.",
			func(eng *engine.Engine, ctx context.Context, name string) error { return eng.Complete(ctx, name) },
			"Test '%s' completed.\n"),
		lifecycleCmd("archive", "Archive a test", "Archive a test. Archived is terminal; the test no longer serves variants.",
			func(eng *engine.Engine, ctx context.Context, name string) error { return eng.Archive(ctx, name) },
			"Test '%s' archived.\n"),
	)
}

func lifecycleCmd(use, short, long string, fn func(*engine.Engine, context.Context, string) error, doneFmt string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withStore(func(s *store.SQLiteStore) error {
				eng := engine.New(s)
				if err := fn(eng, context.Background(), name); err != nil {
					return fmt.Errorf("failed to %s test '%s': %w", use, name, err)
				}
				fmt.Printf(doneFmt, name)
				return nil
			})
		},
	}
}
