package places

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{Registry: NewRegistry()}
}

// openTestDB opens a fresh ReadWrite connection with a private registry.
func openTestDB(t *testing.T) (*DB, Options) {
	t.Helper()
	opts := testOptions()
	path := filepath.Join(t.TempDir(), "places.sqlite")
	db, err := Open(context.Background(), path, ReadWrite, opts.Registry.NewOwnerID(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, opts
}

// scalar runs query on db and scans the single result into dest.
func scalar(t *testing.T, db *DB, dest any, query string, args ...any) error {
	t.Helper()
	return db.Read(context.Background(), func(ctx context.Context) error {
		return db.Querier(ctx).QueryRowContext(ctx, query, args...).Scan(dest)
	})
}

func exec(t *testing.T, db *DB, query string, args ...any) error {
	t.Helper()
	return db.Write(context.Background(), func(ctx context.Context) error {
		_, err := db.Querier(ctx).ExecContext(ctx, query, args...)
		return err
	})
}
