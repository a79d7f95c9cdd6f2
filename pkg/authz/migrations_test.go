package authz

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM authz_migrations").Scan(&applied))
	require.Equal(t, len(GetMigrations()), applied)
}

func TestSeedPermissions_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, SeedPermissions(ctx, store))

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(BuiltInPermissions()))
}
