// Package sqlite opens SQLite databases through github.com/mattn/go-sqlite3
// and keeps each logical connection pinned to one physical connection.
//
// Features:
//   - Open-or-create-or-migrate driven by an Initializer, with the schema
//     version kept in PRAGMA user_version
//   - Per-connection setup (pragmas, SQL functions) through a connect hook
//   - Cooperative interruption of the running statement
//   - Transactions with an optional write lock shared between connections
//   - Retries on SQLITE_BUSY while migrating
//   - Test helpers
//
// # Opening
//
//	conn, err := sqlite.Open(ctx, "places.sqlite", sqlite.OpenOptions{
//		DBOptions: sqlite.DefaultDBOptions(),
//		WriteLock: lock,
//	}, schema)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
// # Queries and transactions
//
// Statements run inside Run or WithinTx and obtain their Querier from the
// context:
//
//	err = conn.WithinTx(ctx, func(ctx context.Context) error {
//		_, err := conn.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", v)
//		return err
//	})
//
// # Interruption
//
//	handle := conn.NewInterruptHandle()
//	go func() { <-stop; handle.Interrupt() }()
//	err = conn.Run(ctx, search)
//	if shared.IsInterrupted(err) { ... }
//
// # Testing
//
//	func TestSomething(t *testing.T) {
//		tdb := sqlite.NewTestDBFile(t, &sqlite.StaticSchema{...})
//		tdb.Exec(t, "INSERT ...")
//	}
package sqlite
