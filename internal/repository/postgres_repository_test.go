package repository_test

import (
	"os"
	"testing"

	"github.com/rongwang/library-rental/internal/config"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/rongwang/library-rental/internal/utils"
	"github.com/stretchr/testify/require"
)

// Runs only if TEST_DATABASE is set. Data is namespaced with random suffixes
// so the test database may be shared between runs.
func TestPostgresRepository(t *testing.T) {
	if os.Getenv("TEST_DATABASE") == "" {
		t.Skip("TEST_DATABASE not set; skipping integration test")
	}

	cfg := config.LoadConfig()
	cfg.Database.DBName = cfg.Database.TestDBName

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			cfg.Database.Driver = driver

			db, err := config.SetupDatabase(cfg, utils.Discard())
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })

			contractTests(t, func(t *testing.T) repository.Repository {
				return repository.NewPostgresRepository(db)
			})
		})
	}
}
