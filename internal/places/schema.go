package places

import (
	"context"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"

	"placesdb/internal/platform/sqlite"
	"placesdb/internal/shared"
)

const (
	// SchemaVersion is the version Init creates and upgrades end at.
	SchemaVersion = 5
	// MinSupportedVersion is the oldest version UpgradeFrom accepts.
	MinSupportedVersion = 3

	schemaName = "places"
)

// Bookmark item types stored in moz_bookmarks.type.
const (
	BookmarkTypeBookmark  = 1
	BookmarkTypeFolder    = 2
	BookmarkTypeSeparator = 3
)

// Bookmark root GUIDs.
const (
	RootGUID    = "root________"
	MenuGUID    = "menu________"
	ToolbarGUID = "toolbar_____"
	UnfiledGUID = "unfiled_____"
	MobileGUID  = "mobile______"
)

// connectionPragmas run on every connection, in this order. page_size must
// precede journal_mode because WAL databases cannot change their page size.
var connectionPragmas = []string{
	"PRAGMA page_size = 32768",
	"PRAGMA cipher_memory_security = false",
	"PRAGMA temp_store = 2",
	"PRAGMA cache_size = -6144",
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA wal_autocheckpoint = 62",
}

const createPlaces = `CREATE TABLE moz_places (
	id INTEGER PRIMARY KEY,
	url LONGVARCHAR NOT NULL,
	title LONGVARCHAR,
	rev_host LONGVARCHAR NOT NULL,
	visit_count_local INTEGER NOT NULL DEFAULT 0,
	last_visit_date_local INTEGER NOT NULL DEFAULT 0,
	typed INTEGER NOT NULL DEFAULT 0,
	frecency INTEGER NOT NULL DEFAULT -1,
	guid TEXT NOT NULL UNIQUE,
	url_hash INTEGER NOT NULL DEFAULT 0,
	origin_id INTEGER REFERENCES moz_origins(id)
)`

const createHistoryVisits = `CREATE TABLE moz_historyvisits (
	id INTEGER PRIMARY KEY,
	place_id INTEGER NOT NULL REFERENCES moz_places(id) ON DELETE CASCADE,
	visit_date INTEGER NOT NULL,
	visit_type INTEGER NOT NULL,
	is_local INTEGER NOT NULL DEFAULT 1
)`

const createOrigins = `CREATE TABLE moz_origins (
	id INTEGER PRIMARY KEY,
	prefix TEXT NOT NULL,
	host TEXT NOT NULL,
	rev_host TEXT NOT NULL,
	frecency INTEGER NOT NULL DEFAULT 0,
	UNIQUE (prefix, host)
)`

const createBookmarks = `CREATE TABLE moz_bookmarks (
	id INTEGER PRIMARY KEY,
	fk INTEGER REFERENCES moz_places(id) ON DELETE RESTRICT,
	type INTEGER NOT NULL,
	parent INTEGER REFERENCES moz_bookmarks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	title TEXT,
	date_added INTEGER NOT NULL DEFAULT 0,
	last_modified INTEGER NOT NULL DEFAULT 0,
	guid TEXT NOT NULL UNIQUE,
	sync_status INTEGER NOT NULL DEFAULT 0,
	sync_change_counter INTEGER NOT NULL DEFAULT 1
)`

const createTags = `CREATE TABLE moz_tags (
	id INTEGER PRIMARY KEY,
	tag TEXT NOT NULL UNIQUE,
	last_modified INTEGER NOT NULL
)`

const createTagsRelation = `CREATE TABLE moz_tags_relation (
	tag_id INTEGER NOT NULL REFERENCES moz_tags(id) ON DELETE CASCADE,
	place_id INTEGER NOT NULL REFERENCES moz_places(id) ON DELETE CASCADE,
	PRIMARY KEY (tag_id, place_id)
) WITHOUT ROWID`

const createMeta = `CREATE TABLE moz_meta (
	key TEXT PRIMARY KEY,
	value NOT NULL
) WITHOUT ROWID`

var createIndexes = []string{
	"CREATE INDEX url_hash_index ON moz_places(url_hash)",
	"CREATE INDEX rev_host_index ON moz_places(rev_host)",
	"CREATE INDEX frecency_index ON moz_places(frecency)",
	"CREATE INDEX last_visit_date_index ON moz_places(last_visit_date_local)",
	"CREATE INDEX origin_index ON moz_places(origin_id)",
	"CREATE INDEX visit_place_index ON moz_historyvisits(place_id, visit_date)",
	"CREATE INDEX visit_date_index ON moz_historyvisits(visit_date)",
	"CREATE INDEX origin_rev_host_index ON moz_origins(rev_host)",
	"CREATE INDEX bookmark_parent_index ON moz_bookmarks(parent, position)",
	"CREATE INDEX bookmark_fk_index ON moz_bookmarks(fk)",
}

// Origins are derived from a place's URL with the URL functions so lookups
// by prefix and host never parse URLs.
const createOriginTrigger = `CREATE TRIGGER moz_places_afterinsert_origin
AFTER INSERT ON moz_places
BEGIN
	INSERT OR IGNORE INTO moz_origins (prefix, host, rev_host)
	VALUES (get_prefix(NEW.url), get_host_and_port(NEW.url),
	        reverse_host(get_host_and_port(NEW.url)));
	UPDATE moz_places SET origin_id = (
		SELECT id FROM moz_origins
		WHERE prefix = get_prefix(NEW.url) AND host = get_host_and_port(NEW.url)
	) WHERE id = NEW.id;
END`

// Every bookmark write that sync must see bumps the owner's change counter.
var createBookmarkSyncTriggers = []string{
	`CREATE TRIGGER moz_bookmarks_afterinsert_sync
AFTER INSERT ON moz_bookmarks
BEGIN
	SELECT note_bookmarks_sync_change();
END`,
	`CREATE TRIGGER moz_bookmarks_afterupdate_sync
AFTER UPDATE OF sync_change_counter ON moz_bookmarks
WHEN NEW.sync_change_counter <> OLD.sync_change_counter
BEGIN
	SELECT note_bookmarks_sync_change();
END`,
	`CREATE TRIGGER moz_bookmarks_afterdelete_sync
AFTER DELETE ON moz_bookmarks
BEGIN
	SELECT note_bookmarks_sync_change();
END`,
}

// upgrades[v] moves a schema from version v to v+1.
var upgrades = map[int][]string{
	3: {
		createOrigins,
		"ALTER TABLE moz_places ADD COLUMN origin_id INTEGER REFERENCES moz_origins(id)",
		`INSERT OR IGNORE INTO moz_origins (prefix, host, rev_host)
		 SELECT get_prefix(url), get_host_and_port(url), reverse_host(get_host_and_port(url))
		 FROM moz_places`,
		`UPDATE moz_places SET origin_id = (
			SELECT o.id FROM moz_origins o
			WHERE o.prefix = get_prefix(moz_places.url)
			  AND o.host = get_host_and_port(moz_places.url))`,
		"CREATE INDEX origin_index ON moz_places(origin_id)",
		"CREATE INDEX origin_rev_host_index ON moz_origins(rev_host)",
		createOriginTrigger,
	},
	4: append([]string{
		"ALTER TABLE moz_bookmarks ADD COLUMN sync_change_counter INTEGER NOT NULL DEFAULT 1",
	}, createBookmarkSyncTriggers...),
}

// initializer is the sqlite.Initializer for places databases. One is built
// per connection so its functions close over that connection's owner.
type initializer struct {
	kind   ConnectionType
	funcs  *functions
	logger *slog.Logger
}

var _ sqlite.Initializer = (*initializer)(nil)

func (i *initializer) Name() string    { return schemaName }
func (i *initializer) EndVersion() int { return SchemaVersion }

func (i *initializer) Prepare(conn *sqlite3.SQLiteConn) error {
	for _, pragma := range connectionPragmas {
		if err := sqlite.Exec(conn, pragma); err != nil {
			return err
		}
	}
	return i.funcs.register(conn)
}

func (i *initializer) Init(ctx context.Context, q sqlite.Querier) error {
	statements := []string{
		createOrigins,
		createPlaces,
		createHistoryVisits,
		createBookmarks,
		createTags,
		createTagsRelation,
		createMeta,
	}
	statements = append(statements, createIndexes...)
	statements = append(statements, createOriginTrigger)
	statements = append(statements, createBookmarkSyncTriggers...)
	return execAll(ctx, q, statements)
}

func (i *initializer) UpgradeFrom(ctx context.Context, q sqlite.Querier, version int) error {
	if version < MinSupportedVersion {
		return fmt.Errorf("%w: version %d is older than %d",
			shared.ErrUnsupportedVersion, version, MinSupportedVersion)
	}
	for v := version; v < SchemaVersion; v++ {
		if err := execAll(ctx, q, upgrades[v]); err != nil {
			return fmt.Errorf("upgrade %d -> %d: %w", v, v+1, err)
		}
		i.logger.Debug("schema step applied", "from", v, "to", v+1)
	}
	return nil
}

// Finish creates the bookmark roots. Read-only connections never migrate,
// and skip it regardless.
func (i *initializer) Finish(ctx context.Context, q sqlite.Querier) error {
	if !i.kind.Writable() {
		return nil
	}
	return createBookmarkRoots(ctx, q)
}

func createBookmarkRoots(ctx context.Context, q sqlite.Querier) error {
	if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO moz_bookmarks
			(id, type, parent, position, title, date_added, last_modified, guid, sync_change_counter)
		VALUES (1, ?, NULL, 0, 'root', now(), now(), ?, 1)`,
		BookmarkTypeFolder, RootGUID); err != nil {
		return fmt.Errorf("failed to create bookmark root: %w", err)
	}

	children := []struct {
		guid  string
		title string
	}{
		{MenuGUID, "menu"},
		{ToolbarGUID, "toolbar"},
		{UnfiledGUID, "unfiled"},
		{MobileGUID, "mobile"},
	}
	for pos, child := range children {
		if _, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO moz_bookmarks
				(type, parent, position, title, date_added, last_modified, guid, sync_change_counter)
			VALUES (?, 1, ?, ?, now(), now(), ?, 1)`,
			BookmarkTypeFolder, pos, child.title, child.guid); err != nil {
			return fmt.Errorf("failed to create bookmark root %s: %w", child.guid, err)
		}
	}
	return nil
}

func execAll(ctx context.Context, q sqlite.Querier, statements []string) error {
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
