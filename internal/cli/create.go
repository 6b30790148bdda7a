package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		description     string
		subject         string
		trafficSplit    int
		minSampleSize   int
		confidenceLevel float64
		interactive     bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new A/B test",
		Long: `Create a new two-arm A/B test in draft status.

The traffic split is the percentage of visitors sent to the treatment
variant "b"; the remainder sees control "a". Start the test with
'pagesplit start <name>'.

Examples:
  pagesplit create hero --split 50
  pagesplit create pricing --split 30 --min-sample 2000 --confidence 99
  pagesplit create hero -i`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testName := args[0]

			cfg := store.TestConfig{
				Description:     description,
				Subject:         subject,
				TrafficSplit:    trafficSplit,
				MinSampleSize:   minSampleSize,
				ConfidenceLevel: confidenceLevel,
			}

			if interactive {
				var err error
				cfg, err = promptTestConfig(cfg)
				if err != nil {
					return err
				}
			}

			return withStore(func(s *store.SQLiteStore) error {
				test, err := s.CreateTest(context.Background(), testName, cfg)
				if err != nil {
					return fmt.Errorf("failed to create test: %w", err)
				}

				fmt.Printf("Created test '%s' (draft)\n", test.Name)
				fmt.Printf("  Traffic split: %d%% to variant b\n", test.TrafficSplit)
				fmt.Printf("  Min sample size: %d\n", test.MinSampleSize)
				fmt.Printf("  Confidence level: %.1f%%\n", test.ConfidenceLevel)
				if test.Description != "" {
					fmt.Printf("  Description: %s\n", test.Description)
				}
				fmt.Printf("\nStart it with: pagesplit start %s\n", test.Name)

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "test description (optional)")
	cmd.Flags().StringVar(&subject, "subject", "", "owning page or subject reference (optional)")
	cmd.Flags().IntVar(&trafficSplit, "split", 0, "percent of traffic sent to variant b (10-90, default 50)")
	cmd.Flags().IntVar(&minSampleSize, "min-sample", 0, "minimum sample size per variant (100-100000, default 1000)")
	cmd.Flags().Float64Var(&confidenceLevel, "confidence", 0, "confidence level percent (80-99.9, default 95)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for settings interactively")

	return cmd
}

func promptTestConfig(cfg store.TestConfig) (store.TestConfig, error) {
	prompt := promptui.Prompt{
		Label:   "Description",
		Default: cfg.Description,
	}
	description, err := prompt.Run()
	if err != nil {
		return cfg, promptErr(err)
	}
	cfg.Description = description

	prompt = promptui.Prompt{
		Label:   "Traffic split (% to variant b)",
		Default: "50",
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < store.MinTrafficSplit || n > store.MaxTrafficSplit {
				return fmt.Errorf("enter a number between %d and %d", store.MinTrafficSplit, store.MaxTrafficSplit)
			}
			return nil
		},
	}
	splitStr, err := prompt.Run()
	if err != nil {
		return cfg, promptErr(err)
	}
	cfg.TrafficSplit, _ = strconv.Atoi(splitStr)

	prompt = promptui.Prompt{
		Label:   "Minimum sample size per variant",
		Default: "1000",
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < store.MinSampleSizeLower || n > store.MinSampleSizeUpper {
				return fmt.Errorf("enter a number between %d and %d", store.MinSampleSizeLower, store.MinSampleSizeUpper)
			}
			return nil
		},
	}
	sampleStr, err := prompt.Run()
	if err != nil {
		return cfg, promptErr(err)
	}
	cfg.MinSampleSize, _ = strconv.Atoi(sampleStr)

	prompt = promptui.Prompt{
		Label:   "Confidence level (%)",
		Default: "95",
		Validate: func(s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f < store.MinConfidenceLevel || f > store.MaxConfidenceLevel {
				return fmt.Errorf("enter a number between %.1f and %.1f", store.MinConfidenceLevel, store.MaxConfidenceLevel)
			}
			return nil
		},
	}
	confStr, err := prompt.Run()
	if err != nil {
		return cfg, promptErr(err)
	}
	cfg.ConfidenceLevel, _ = strconv.ParseFloat(confStr, 64)

	return cfg, nil
}

func promptErr(err error) error {
	if err == promptui.ErrInterrupt {
		os.Exit(0)
	}
	return err
}
