package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"placesdb/internal/places"
	"placesdb/internal/platform/sqlite"
	"placesdb/internal/shared"
)

// Bookmark is an item of the bookmark tree.
type Bookmark struct {
	GUID              string
	ParentGUID        string
	Type              int
	Position          int
	Title             string
	URL               string
	DateAdded         time.Time
	LastModified      time.Time
	SyncChangeCounter int64
}

// NewBookmark describes an item to insert.
type NewBookmark struct {
	ParentGUID string
	// Type is one of places.BookmarkType*; zero means a bookmark.
	Type  int
	URL   string
	Title string
	// Position is the index among the parent's children. Nil, negative or
	// past the end appends.
	Position *int
}

// PositionAt returns a NewBookmark.Position for index i.
func PositionAt(i int) *int { return &i }

const bookmarkSelect = `SELECT b.id, b.guid, COALESCE(parent.guid, ''), b.type, b.position,
	COALESCE(b.title, ''), COALESCE(h.url, ''), b.date_added, b.last_modified,
	b.sync_change_counter, b.parent, b.fk
FROM moz_bookmarks b
LEFT JOIN moz_bookmarks parent ON parent.id = b.parent
LEFT JOIN moz_places h ON h.id = b.fk`

// bookmarkRow carries the ids the public Bookmark hides.
type bookmarkRow struct {
	Bookmark
	id       int64
	parentID sql.NullInt64
	placeID  sql.NullInt64
}

func scanBookmark(row scanner) (bookmarkRow, error) {
	var (
		b                       bookmarkRow
		dateAdded, lastModified int64
	)
	if err := row.Scan(&b.id, &b.GUID, &b.ParentGUID, &b.Type, &b.Position,
		&b.Title, &b.URL, &dateAdded, &lastModified,
		&b.SyncChangeCounter, &b.parentID, &b.placeID); err != nil {
		return bookmarkRow{}, err
	}
	b.DateAdded = time.UnixMilli(dateAdded)
	b.LastModified = time.UnixMilli(lastModified)
	return b, nil
}

func fetchBookmark(ctx context.Context, q sqlite.Querier, guid string) (bookmarkRow, error) {
	b, err := scanBookmark(q.QueryRowContext(ctx, bookmarkSelect+" WHERE b.guid = ?", guid))
	if errors.Is(err, sql.ErrNoRows) {
		return bookmarkRow{}, shared.MarkKind(fmt.Errorf("bookmark %s", guid), shared.KindNotFound)
	}
	if err != nil {
		return bookmarkRow{}, fmt.Errorf("failed to fetch bookmark %s: %w", guid, err)
	}
	return b, nil
}

func isRoot(guid string) bool {
	switch guid {
	case places.RootGUID, places.MenuGUID, places.ToolbarGUID, places.UnfiledGUID, places.MobileGUID:
		return true
	}
	return false
}

// FetchBookmark returns the item with guid.
func (s *Store) FetchBookmark(ctx context.Context, guid string) (Bookmark, error) {
	var b bookmarkRow
	err := s.db.Read(ctx, func(ctx context.Context) error {
		var err error
		b, err = fetchBookmark(ctx, s.db.Querier(ctx), guid)
		return err
	})
	return b.Bookmark, err
}

// InsertBookmark inserts an item under an existing folder and returns it.
func (s *Store) InsertBookmark(ctx context.Context, nb NewBookmark) (Bookmark, error) {
	if nb.Type == 0 {
		nb.Type = places.BookmarkTypeBookmark
	}
	switch nb.Type {
	case places.BookmarkTypeBookmark:
		if nb.URL == "" {
			return Bookmark{}, shared.InvalidArgumentf("bookmark needs a url")
		}
	case places.BookmarkTypeFolder, places.BookmarkTypeSeparator:
		if nb.URL != "" {
			return Bookmark{}, shared.InvalidArgumentf("bookmark type %d cannot have a url", nb.Type)
		}
	default:
		return Bookmark{}, shared.InvalidArgumentf("unknown bookmark type %d", nb.Type)
	}
	if nb.ParentGUID == places.RootGUID {
		return Bookmark{}, shared.InvalidArgumentf("cannot insert into the root folder")
	}

	var inserted bookmarkRow
	err := s.db.Write(ctx, func(ctx context.Context) error {
		q := s.db.Querier(ctx)
		parent, err := fetchBookmark(ctx, q, nb.ParentGUID)
		if err != nil {
			return err
		}
		if parent.Type != places.BookmarkTypeFolder {
			return shared.InvalidArgumentf("parent %s is not a folder", nb.ParentGUID)
		}

		var children int
		if err := q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM moz_bookmarks WHERE parent = ?", parent.id).Scan(&children); err != nil {
			return fmt.Errorf("failed to count children: %w", err)
		}
		pos := children
		if nb.Position != nil && *nb.Position >= 0 && *nb.Position < children {
			pos = *nb.Position
		}
		if pos < children {
			if _, err := q.ExecContext(ctx, `UPDATE moz_bookmarks SET position = position + 1
				WHERE parent = ? AND position >= ?`, parent.id, pos); err != nil {
				return fmt.Errorf("failed to shift siblings: %w", err)
			}
		}

		var placeID sql.NullInt64
		if nb.Type == places.BookmarkTypeBookmark {
			key, err := canonical(nb.URL)
			if err != nil {
				return err
			}
			id, err := ensurePlace(ctx, q, key, "")
			if err != nil {
				return err
			}
			placeID = sql.NullInt64{Int64: id, Valid: true}
		}

		var guid string
		if err := q.QueryRowContext(ctx, `
			INSERT INTO moz_bookmarks (fk, type, parent, position, title, date_added, last_modified, guid)
			VALUES (?, ?, ?, ?, NULLIF(?, ''), now(), now(), generate_guid())
			RETURNING guid`,
			placeID, nb.Type, parent.id, pos, nb.Title).Scan(&guid); err != nil {
			return fmt.Errorf("failed to insert bookmark: %w", err)
		}

		if err := touchFolder(ctx, q, parent.id); err != nil {
			return err
		}
		if placeID.Valid {
			if err := updateFrecency(ctx, q, placeID.Int64); err != nil {
				return err
			}
		}

		inserted, err = fetchBookmark(ctx, q, guid)
		return err
	})
	return inserted.Bookmark, err
}

// UpdateBookmarkTitle renames an item and marks it changed for sync.
func (s *Store) UpdateBookmarkTitle(ctx context.Context, guid, title string) (Bookmark, error) {
	if isRoot(guid) {
		return Bookmark{}, shared.InvalidArgumentf("cannot rename root %s", guid)
	}

	var updated bookmarkRow
	err := s.db.Write(ctx, func(ctx context.Context) error {
		q := s.db.Querier(ctx)
		b, err := fetchBookmark(ctx, q, guid)
		if err != nil {
			return err
		}
		if b.Type == places.BookmarkTypeSeparator {
			return shared.InvalidArgumentf("separators have no title")
		}

		if _, err := q.ExecContext(ctx, `UPDATE moz_bookmarks SET
				title = NULLIF(?, ''),
				last_modified = now(),
				sync_change_counter = sync_change_counter + 1
			WHERE id = ?`, title, b.id); err != nil {
			return fmt.Errorf("failed to update bookmark: %w", err)
		}

		updated, err = fetchBookmark(ctx, q, guid)
		return err
	})
	return updated.Bookmark, err
}

// DeleteBookmark removes an item and, for folders, everything below it.
func (s *Store) DeleteBookmark(ctx context.Context, guid string) error {
	if isRoot(guid) {
		return shared.InvalidArgumentf("cannot delete root %s", guid)
	}

	return s.db.Write(ctx, func(ctx context.Context) error {
		q := s.db.Querier(ctx)
		b, err := fetchBookmark(ctx, q, guid)
		if err != nil {
			return err
		}

		placeIDs, err := subtreePlaces(ctx, q, b.id)
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM moz_bookmarks WHERE id = ?", b.id); err != nil {
			return fmt.Errorf("failed to delete bookmark: %w", err)
		}
		if _, err := q.ExecContext(ctx, `UPDATE moz_bookmarks SET position = position - 1
			WHERE parent = ? AND position > ?`, b.parentID, b.Position); err != nil {
			return fmt.Errorf("failed to shift siblings: %w", err)
		}
		if err := touchFolder(ctx, q, b.parentID.Int64); err != nil {
			return err
		}

		for _, id := range placeIDs {
			if err := updateFrecency(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// subtreePlaces lists the places referenced by an item and its descendants.
func subtreePlaces(ctx context.Context, q sqlite.Querier, id int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT ?
			UNION ALL
			SELECT b.id FROM moz_bookmarks b JOIN subtree s ON b.parent = s.id
		)
		SELECT DISTINCT fk FROM moz_bookmarks
		WHERE id IN subtree AND fk IS NOT NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarked places: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var placeID int64
		if err := rows.Scan(&placeID); err != nil {
			return nil, err
		}
		ids = append(ids, placeID)
	}
	return ids, rows.Err()
}

// touchFolder marks a folder whose children changed.
func touchFolder(ctx context.Context, q sqlite.Querier, id int64) error {
	if _, err := q.ExecContext(ctx, `UPDATE moz_bookmarks SET
			last_modified = now(),
			sync_change_counter = sync_change_counter + 1
		WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to update folder: %w", err)
	}
	return nil
}

// BookmarksInFolder lists the children of a folder in position order.
func (s *Store) BookmarksInFolder(ctx context.Context, parentGUID string) ([]Bookmark, error) {
	var out []Bookmark
	err := s.db.ReadTx(ctx, func(ctx context.Context) error {
		q := s.db.Querier(ctx)
		parent, err := fetchBookmark(ctx, q, parentGUID)
		if err != nil {
			return err
		}
		if parent.Type != places.BookmarkTypeFolder {
			return shared.InvalidArgumentf("%s is not a folder", parentGUID)
		}

		rows, err := q.QueryContext(ctx, bookmarkSelect+" WHERE b.parent = ? ORDER BY b.position", parent.id)
		if err != nil {
			return fmt.Errorf("failed to list children: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			b, err := scanBookmark(rows)
			if err != nil {
				return err
			}
			out = append(out, b.Bookmark)
		}
		return rows.Err()
	})
	return out, err
}

// TagURL attaches tag to the place for rawURL, creating the place if needed.
func (s *Store) TagURL(ctx context.Context, rawURL, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return shared.InvalidArgumentf("empty tag")
	}
	key, err := canonical(rawURL)
	if err != nil {
		return err
	}

	return s.db.Write(ctx, func(ctx context.Context) error {
		q := s.db.Querier(ctx)
		placeID, err := ensurePlace(ctx, q, key, "")
		if err != nil {
			return err
		}

		var tagID int64
		if err := q.QueryRowContext(ctx, `
			INSERT INTO moz_tags (tag, last_modified) VALUES (?, now())
			ON CONFLICT (tag) DO UPDATE SET last_modified = excluded.last_modified
			RETURNING id`, tag).Scan(&tagID); err != nil {
			return fmt.Errorf("failed to upsert tag: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO moz_tags_relation (tag_id, place_id) VALUES (?, ?)",
			tagID, placeID); err != nil {
			return fmt.Errorf("failed to tag place: %w", err)
		}
		return nil
	})
}

// TagsForURL returns the tags of a place in alphabetical order.
func (s *Store) TagsForURL(ctx context.Context, rawURL string) ([]string, error) {
	key, err := canonical(rawURL)
	if err != nil {
		return nil, err
	}

	var tags []string
	err = s.db.Read(ctx, func(ctx context.Context) error {
		rows, err := s.db.Querier(ctx).QueryContext(ctx, `
			SELECT t.tag FROM moz_tags t
			JOIN moz_tags_relation r ON r.tag_id = t.id
			JOIN moz_places h ON h.id = r.place_id
			WHERE h.url_hash = hash(?1) AND h.url = ?1
			ORDER BY t.tag`, key.URL)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tag string
			if err := rows.Scan(&tag); err != nil {
				return err
			}
			tags = append(tags, tag)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}
