package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/storage"
	"extsys/internal/storage/postgres"
	"extsys/internal/storage/storagetest"
)

// Runs against a disposable database named by EXTSYS_TEST_POSTGRES_URL.
func TestAdapter(t *testing.T) {
	dsn := os.Getenv("EXTSYS_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("EXTSYS_TEST_POSTGRES_URL not set")
	}
	config, err := postgres.NewConfigFromURL(dsn)
	require.NoError(t, err)

	storagetest.Run(t, func(t *testing.T, bus events.Bus) storage.Store {
		ctx := context.Background()
		store, err := postgres.NewAdapter(ctx, config, bus, logging.NopLogger{})
		require.NoError(t, err)
		_, err = store.DB().ExecContext(ctx, `TRUNCATE http_configs, external_systems`)
		require.NoError(t, err)
		return store
	})
}
