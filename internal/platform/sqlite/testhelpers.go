package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// StaticSchema is an Initializer built from literal statements.
// Upgrades[v] moves a schema from version v to v+1.
type StaticSchema struct {
	SchemaName string
	Version    int
	Statements []string
	Upgrades   map[int][]string
	Pragmas    []string
	OnFinish   func(ctx context.Context, q Querier) error
}

var _ Initializer = (*StaticSchema)(nil)

func (s *StaticSchema) Name() string    { return s.SchemaName }
func (s *StaticSchema) EndVersion() int { return s.Version }

func (s *StaticSchema) Prepare(conn *sqlite3.SQLiteConn) error {
	for _, pragma := range s.Pragmas {
		if err := Exec(conn, pragma); err != nil {
			return err
		}
	}
	return nil
}

func (s *StaticSchema) Init(ctx context.Context, q Querier) error {
	return execAll(ctx, q, s.Statements)
}

func (s *StaticSchema) UpgradeFrom(ctx context.Context, q Querier, version int) error {
	for v := version; v < s.Version; v++ {
		steps, ok := s.Upgrades[v]
		if !ok {
			return fmt.Errorf("no upgrade from version %d", v)
		}
		if err := execAll(ctx, q, steps); err != nil {
			return err
		}
	}
	return nil
}

func (s *StaticSchema) Finish(ctx context.Context, q Querier) error {
	if s.OnFinish != nil {
		return s.OnFinish(ctx, q)
	}
	return nil
}

func execAll(ctx context.Context, q Querier, statements []string) error {
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// TestDB is a file-backed connection with assertion helpers.
type TestDB struct {
	Conn *Conn
	Path string
}

// NewTestDBFile opens init in a fresh file under t.TempDir().
// The connection is closed when the test ends.
func NewTestDBFile(t *testing.T, init Initializer) *TestDB {
	t.Helper()
	return OpenTestDB(t, filepath.Join(t.TempDir(), "test.sqlite"), DefaultDBOptions(), init)
}

// OpenTestDB opens path with opts and fails the test on error.
func OpenTestDB(t *testing.T, path string, opts DBOptions, init Initializer) *TestDB {
	t.Helper()

	conn, err := Open(context.Background(), path, OpenOptions{DBOptions: opts}, init)
	if err != nil {
		t.Fatalf("Failed to open test DB %s: %v", path, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &TestDB{Conn: conn, Path: path}
}

// Exec executes a statement and fails the test on error.
func (tdb *TestDB) Exec(t *testing.T, query string, args ...any) {
	t.Helper()

	err := tdb.Conn.Run(context.Background(), func(ctx context.Context) error {
		_, err := tdb.Conn.GetQuerier(ctx).ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to execute query: %v", err)
	}
}

// MustSeedData executes each statement in order.
func (tdb *TestDB) MustSeedData(t *testing.T, queries ...string) {
	t.Helper()
	for _, query := range queries {
		tdb.Exec(t, query)
	}
}

// QueryScalar scans the single value returned by query into dest.
func (tdb *TestDB) QueryScalar(t *testing.T, dest any, query string, args ...any) {
	t.Helper()

	err := tdb.Conn.Run(context.Background(), func(ctx context.Context) error {
		return tdb.Conn.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(dest)
	})
	if err != nil {
		t.Fatalf("Failed to query %q: %v", query, err)
	}
}

// CountRows returns the number of rows in table.
func (tdb *TestDB) CountRows(t *testing.T, table string) int {
	t.Helper()

	var count int
	tdb.QueryScalar(t, &count, "SELECT COUNT(*) FROM "+table)
	return count
}

// TableExists reports whether table exists.
func (tdb *TestDB) TableExists(t *testing.T, table string) bool {
	t.Helper()

	var count int
	tdb.QueryScalar(t, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
	return count > 0
}
