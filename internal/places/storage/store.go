// Package storage implements history, bookmark and search operations on top
// of a places connection. Every lookup goes through the SQL functions the
// connection registers, so the queries stay on the url_hash and rev_host
// indexes.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"placesdb/internal/places"
	"placesdb/internal/places/urlkey"
	"placesdb/internal/platform/sqlite"
	"placesdb/internal/shared"
)

// Store runs storage operations on one connection. Writes need a ReadWrite
// or Sync connection; reads work on any kind.
type Store struct {
	db *places.DB
}

func New(db *places.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *places.DB { return s.db }

// Place is a row of moz_places.
type Place struct {
	ID         int64
	GUID       string
	URL        string
	Title      string
	VisitCount int64
	LastVisit  time.Time
	Typed      int64
	Frecency   int64
}

const placeColumns = `id, guid, url, COALESCE(title, ''), visit_count_local,
	last_visit_date_local, typed, frecency`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlace(row scanner) (Place, error) {
	var (
		p         Place
		lastVisit int64
	)
	if err := row.Scan(&p.ID, &p.GUID, &p.URL, &p.Title, &p.VisitCount,
		&lastVisit, &p.Typed, &p.Frecency); err != nil {
		return Place{}, err
	}
	if lastVisit > 0 {
		p.LastVisit = time.UnixMilli(lastVisit)
	}
	return p, nil
}

// FetchPlace looks a place up by URL.
func (s *Store) FetchPlace(ctx context.Context, rawURL string) (Place, error) {
	key, err := canonical(rawURL)
	if err != nil {
		return Place{}, err
	}

	var place Place
	err = s.db.Read(ctx, func(ctx context.Context) error {
		var err error
		place, err = fetchPlace(ctx, s.db.Querier(ctx), key.URL)
		return err
	})
	return place, err
}

func fetchPlace(ctx context.Context, q sqlite.Querier, canonicalURL string) (Place, error) {
	row := q.QueryRowContext(ctx, `SELECT `+placeColumns+` FROM moz_places
		WHERE url_hash = hash(?1) AND url = ?1`, canonicalURL)
	place, err := scanPlace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Place{}, shared.MarkKind(fmt.Errorf("place %s", canonicalURL), shared.KindNotFound)
	}
	if err != nil {
		return Place{}, fmt.Errorf("failed to fetch place: %w", err)
	}
	return place, nil
}

// ensurePlace returns the id of the place for key, inserting it if needed.
// The origin is linked by the moz_places insert trigger.
func ensurePlace(ctx context.Context, q sqlite.Querier, key urlkey.Key, title string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM moz_places WHERE url_hash = hash(?1) AND url = ?1", key.URL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up place: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO moz_places (url, title, rev_host, url_hash, guid)
		VALUES (?1, NULLIF(?2, ''), ?3, hash(?1), generate_guid())`,
		key.URL, title, key.RevHost)
	if err != nil {
		return 0, fmt.Errorf("failed to insert place: %w", err)
	}
	return res.LastInsertId()
}

func canonical(rawURL string) (urlkey.Key, error) {
	key, err := urlkey.Canonicalize(rawURL)
	if err != nil {
		return urlkey.Key{}, shared.MarkKind(err, shared.KindInvalidArgument)
	}
	return key, nil
}

// updateFrecency recomputes the ranking score of a place from its visits,
// typed count and bookmarks.
func updateFrecency(ctx context.Context, q sqlite.Querier, placeID int64) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE moz_places SET frecency =
			visit_count_local * 100
			+ CASE WHEN typed > 0 THEN 2000 ELSE 0 END
			+ CASE WHEN EXISTS (SELECT 1 FROM moz_bookmarks WHERE fk = ?1) THEN 1000 ELSE 0 END
		WHERE id = ?1`, placeID); err != nil {
		return fmt.Errorf("failed to update frecency: %w", err)
	}
	return nil
}
