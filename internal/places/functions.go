package places

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	sqlite3 "github.com/mattn/go-sqlite3"

	"placesdb/internal/places/match"
	"placesdb/internal/places/urlhash"
	"placesdb/internal/places/urlkey"
	"placesdb/internal/shared"
)

// guidBytes random bytes encode to a 12 character URL-safe GUID.
const guidBytes = 9

// functions holds what the SQL functions of one connection close over.
type functions struct {
	owner    OwnerID
	registry *Registry
	matcher  match.Matcher
	now      func() time.Time
}

// register installs every SQL function on conn. Deterministic functions are
// flagged so SQLite may fold and cache them; generators and the change hook
// are not.
func (f *functions) register(conn *sqlite3.SQLiteConn) error {
	deterministic := []struct {
		name string
		impl any
	}{
		{"get_prefix", f.getPrefix},
		{"get_host_and_port", f.getHostAndPort},
		{"strip_prefix_and_userinfo", f.stripPrefixAndUserinfo},
		{"reverse_host", f.reverseHost},
		{"autocomplete_match", f.autocompleteMatch},
		{"hash", f.hash},
	}
	for _, fn := range deterministic {
		if err := conn.RegisterFunc(fn.name, fn.impl, true); err != nil {
			return fmt.Errorf("failed to register %s: %w", fn.name, err)
		}
	}

	volatile := []struct {
		name string
		impl any
	}{
		{"now", f.nowMillis},
		{"generate_guid", generateGUID},
		{"note_bookmarks_sync_change", f.noteBookmarksSyncChange},
	}
	for _, fn := range volatile {
		if err := conn.RegisterFunc(fn.name, fn.impl, false); err != nil {
			return fmt.Errorf("failed to register %s: %w", fn.name, err)
		}
	}
	return nil
}

// SQL NULL reaches interface{} parameters as a nil []byte.
func isNull(v any) bool {
	b, ok := v.([]byte)
	return v == nil || ok && b == nil
}

// textArg converts a TEXT or BLOB argument to a valid UTF-8 string.
func textArg(fn string, pos int, v any) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return "", shared.InvalidArgumentf("%s: argument %d must be text, got %T", fn, pos, v)
	}
	if !utf8.ValidString(s) {
		return "", shared.InvalidArgumentf("%s: argument %d is not valid UTF-8", fn, pos)
	}
	return s, nil
}

// optionalText is textArg with NULL read as "".
func optionalText(fn string, pos int, v any) (string, error) {
	if isNull(v) {
		return "", nil
	}
	return textArg(fn, pos, v)
}

// intArg converts an INTEGER argument; NULL reads as def.
func intArg(fn string, pos int, v any, def int64) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x <= math.MaxInt64 {
			return int64(x), nil
		}
	case []byte:
		if x == nil {
			return def, nil
		}
	case nil:
		return def, nil
	}
	return 0, shared.InvalidArgumentf("%s: argument %d must be an integer, got %T", fn, pos, v)
}

// stringFunc lifts a text transformation to a NULL-propagating SQL function.
func stringFunc(name string, v any, fn func(string) string) (any, error) {
	if isNull(v) {
		return nil, nil
	}
	s, err := textArg(name, 1, v)
	if err != nil {
		return nil, err
	}
	return fn(s), nil
}

func (f *functions) getPrefix(href any) (any, error) {
	return stringFunc("get_prefix", href, urlkey.Prefix)
}

func (f *functions) getHostAndPort(href any) (any, error) {
	return stringFunc("get_host_and_port", href, urlkey.HostAndPort)
}

func (f *functions) stripPrefixAndUserinfo(href any) (any, error) {
	return stringFunc("strip_prefix_and_userinfo", href, urlkey.StripPrefixAndUserinfo)
}

func (f *functions) reverseHost(host any) (any, error) {
	if isNull(host) {
		return nil, nil
	}
	s, err := textArg("reverse_host", 1, host)
	if err != nil {
		return nil, err
	}
	rev, err := urlkey.ReverseHost(s)
	if err != nil {
		return nil, shared.InvalidArgumentf("reverse_host: %v", err)
	}
	return rev, nil
}

// hash implements hash(value) and hash(value, mode). A NULL value yields
// NULL so that folding hash(NULL) can never produce a plausible hash.
func (f *functions) hash(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, shared.InvalidArgumentf("hash: expected 1 or 2 arguments, got %d", len(args))
	}

	mode := urlhash.Full
	if len(args) == 2 {
		if isNull(args[1]) {
			return nil, shared.InvalidArgumentf("hash: mode must not be NULL")
		}
		s, err := textArg("hash", 2, args[1])
		if err != nil {
			return nil, err
		}
		if mode, err = urlhash.ParseMode(s); err != nil {
			return nil, shared.InvalidArgumentf("hash: %v", err)
		}
	}

	if isNull(args[0]) {
		return nil, nil
	}
	value, err := textArg("hash", 1, args[0])
	if err != nil {
		return nil, err
	}
	return int64(urlhash.Prefix(value, mode)), nil
}

// autocompleteMatch is autocomplete_match(search, url, title, tags,
// visit_count, typed, bookmarked, open_page_count, match_behavior,
// search_behavior).
func (f *functions) autocompleteMatch(
	search, url, title, tags, visitCount, typed, bookmarked, openPageCount, matchBehavior, searchBehavior any,
) (bool, error) {
	const name = "autocomplete_match"

	var (
		c   match.Candidate
		err error
	)
	searchStr, err := optionalText(name, 1, search)
	if err != nil {
		return false, err
	}
	if c.URL, err = textArg(name, 2, url); err != nil {
		return false, err
	}
	if c.Title, err = optionalText(name, 3, title); err != nil {
		return false, err
	}
	if c.Tags, err = optionalText(name, 4, tags); err != nil {
		return false, err
	}
	if c.VisitCount, err = intArg(name, 5, visitCount, 0); err != nil {
		return false, err
	}
	if c.VisitCount < 0 {
		return false, shared.InvalidArgumentf("%s: visit count %d is negative", name, c.VisitCount)
	}
	typedInt, err := intArg(name, 6, typed, 0)
	if err != nil {
		return false, err
	}
	bookmarkedInt, err := intArg(name, 7, bookmarked, 0)
	if err != nil {
		return false, err
	}
	c.Typed, c.Bookmarked = typedInt != 0, bookmarkedInt != 0
	if c.OpenPageCount, err = intArg(name, 8, openPageCount, 0); err != nil {
		return false, err
	}

	mbRaw, err := intArg(name, 9, matchBehavior, int64(match.Anywhere))
	if err != nil {
		return false, err
	}
	mb, err := match.ParseMatchBehavior(mbRaw)
	if err != nil {
		return false, shared.InvalidArgumentf("%s: %v", name, err)
	}
	sbRaw, err := intArg(name, 10, searchBehavior, int64(match.DefaultSearchBehavior))
	if err != nil {
		return false, err
	}
	sb, err := match.ParseSearchBehavior(sbRaw)
	if err != nil {
		return false, shared.InvalidArgumentf("%s: %v", name, err)
	}

	return f.matcher.Match(searchStr, c, mb, sb), nil
}

// nowMillis is now(): milliseconds since the Unix epoch.
func (f *functions) nowMillis() int64 {
	return f.now().UnixMilli()
}

// generateGUID returns 12 URL-safe base64 characters.
func generateGUID() (string, error) {
	var b [guidBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate_guid: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// noteBookmarksSyncChange is note_bookmarks_sync_change(), fired by the
// bookmark triggers.
func (f *functions) noteBookmarksSyncChange() int64 {
	return f.registry.NoteChange(f.owner)
}
