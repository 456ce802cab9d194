package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/absmach/hyperfold/pkg/storage/sqlite"
	"github.com/absmach/hyperfold/pkg/storage/testutil"
	"github.com/stretchr/testify/require"
)

func TestRepository(t *testing.T) {
	db, err := sqlite.NewDatabase(filepath.Join(t.TempDir(), "hyperfold.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	testutil.RunRepositoryTests(t, sqlite.NewRepository(db))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperfold.db")

	first, err := sqlite.NewDatabase(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sqlite.NewDatabase(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
