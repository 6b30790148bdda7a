package cli

import (
	"fmt"
	"path/filepath"

	"github.com/pagesplit/pagesplit/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// tokenFilePath returns the path to the admin token file, stored
// alongside the database.
func tokenFilePath() string {
	return filepath.Join(filepath.Dir(dbPath), ".pagesplit-token")
}
