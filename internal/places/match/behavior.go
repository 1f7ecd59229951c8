package match

import "fmt"

// MatchBehavior selects where in a field a search token may match.
type MatchBehavior int

const (
	// Anywhere matches a token anywhere in the field.
	Anywhere MatchBehavior = iota
	// BoundaryAnywhere prefers word boundaries; per row it is Boundary, the
	// anywhere fallback is the caller's second query.
	BoundaryAnywhere
	// Boundary matches a token at the start of a word.
	Boundary
	// Beginning matches a token at the start of the field.
	Beginning
	// AnywhereUnmodified matches anywhere in the URL as stored, without fixup.
	AnywhereUnmodified
	// BeginningCaseSensitive is Beginning without case folding.
	BeginningCaseSensitive
)

var matchBehaviorNames = [...]string{
	Anywhere:               "anywhere",
	BoundaryAnywhere:       "boundary_anywhere",
	Boundary:               "boundary",
	Beginning:              "beginning",
	AnywhereUnmodified:     "anywhere_unmodified",
	BeginningCaseSensitive: "beginning_case_sensitive",
}

func (m MatchBehavior) String() string {
	if m >= 0 && int(m) < len(matchBehaviorNames) {
		return matchBehaviorNames[m]
	}
	return fmt.Sprintf("MatchBehavior(%d)", int(m))
}

// ParseMatchBehavior validates a selector read from SQL.
func ParseMatchBehavior(v int64) (MatchBehavior, error) {
	if v < 0 || v >= int64(len(matchBehaviorNames)) {
		return 0, fmt.Errorf("unknown match behavior %d", v)
	}
	return MatchBehavior(v), nil
}

// ParseMatchBehaviorName maps a name such as "boundary" to its value.
func ParseMatchBehaviorName(name string) (MatchBehavior, error) {
	for i, n := range matchBehaviorNames {
		if n == name {
			return MatchBehavior(i), nil
		}
	}
	return 0, fmt.Errorf("unknown match behavior %q", name)
}

// SearchBehavior is a set of restrictions and sources for a search.
type SearchBehavior uint32

const (
	History SearchBehavior = 1 << iota
	Bookmark
	Tag
	Title
	URL
	Typed
	Javascript
	OpenPage
	Restrict
	EnableActions
	Searches
)

// DefaultSearchBehavior searches history, bookmarks and open pages.
const DefaultSearchBehavior = History | Bookmark | OpenPage | Searches

const allSearchBehaviors = Searches<<1 - 1

// Has reports whether every bit of b is set in s.
func (s SearchBehavior) Has(b SearchBehavior) bool {
	return s&b == b
}

// ParseSearchBehavior validates a bit set read from SQL.
func ParseSearchBehavior(v int64) (SearchBehavior, error) {
	if v < 0 || v&^int64(allSearchBehaviors) != 0 {
		return 0, fmt.Errorf("unknown search behavior bits %#x", v)
	}
	return SearchBehavior(v), nil
}
