package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the admin API token",
	Long: `Show the current admin token for protected endpoints.

Use it as ?token=... on the optimize endpoint, for example:
  curl -X POST "http://localhost:8080/api/tests/hero/optimize?token=$(pagesplit token -q)"`,
	RunE: runToken,
}

var tokenQuiet bool

func init() {
	tokenCmd.Flags().BoolVarP(&tokenQuiet, "quiet", "q", false, "print the bare token only")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(tokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running (token file not found)\nStart the server with: pagesplit serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: pagesplit serve")
	}

	if tokenQuiet {
		fmt.Println(token)
		return nil
	}

	fmt.Printf("Admin token: %s\n", token)
	return nil
}
