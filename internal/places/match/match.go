// Package match implements the autocomplete_match predicate.
//
// The SQL function hands every candidate row to a Matcher together with the
// search string and the two behavior selectors. Matchers must be pure: the
// query engine may evaluate rows in any order and skip rows at will.
package match

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// maxSearchChars bounds how much of each field is searched.
const maxSearchChars = 255

// Candidate is one row offered to a Matcher.
type Candidate struct {
	URL           string
	Title         string
	Tags          string
	VisitCount    int64
	Typed         bool
	Bookmarked    bool
	OpenPageCount int64
}

// Matcher decides whether a candidate matches a search.
type Matcher interface {
	Match(search string, c Candidate, mb MatchBehavior, sb SearchBehavior) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(search string, c Candidate, mb MatchBehavior, sb SearchBehavior) bool

func (f MatcherFunc) Match(search string, c Candidate, mb MatchBehavior, sb SearchBehavior) bool {
	return f(search, c, mb, sb)
}

// Default is the token matcher used by the desktop browser's location bar.
// Every whitespace separated token must match the title, tags or URL, as
// constrained by the search behavior.
type Default struct{}

var _ Matcher = Default{}

func (Default) Match(search string, c Candidate, mb MatchBehavior, sb SearchBehavior) bool {
	if !sb.Has(Javascript) &&
		hasPrefixFold(c.URL, "javascript:") && !hasPrefixFold(search, "javascript:") {
		return false
	}

	if !sourceMatches(c, sb) {
		return false
	}

	find := finderFor(mb)
	fold := mb != BeginningCaseSensitive
	caser := cases.Fold()
	prepare := func(s string) string {
		s = truncate(s, maxSearchChars)
		if fold {
			s = caser.String(s)
		}
		return s
	}

	fixedURL := c.URL
	if mb != AnywhereUnmodified {
		fixedURL = fixupURL(fixedURL)
	}
	urlText := prepare(fixedURL)
	title := prepare(c.Title)
	tags := prepare(c.Tags)

	for _, token := range strings.Fields(search) {
		if fold {
			token = caser.String(token)
		}

		matchesTitleOrTags := find(token, title) || (c.Tags != "" && find(token, tags))
		if sb.Has(Title) && !matchesTitleOrTags {
			return false
		}

		matchesURL := find(token, urlText)
		if sb.Has(URL) && !matchesURL {
			return false
		}

		if !matchesTitleOrTags && !matchesURL {
			return false
		}
	}
	return true
}

// sourceMatches applies the source bits of sb. With Restrict every requested
// source must apply, otherwise any one of them.
func sourceMatches(c Candidate, sb SearchBehavior) bool {
	history := c.VisitCount > 0
	typed := c.Typed
	bookmarked := c.Bookmarked
	tagged := c.Tags != ""
	open := c.OpenPageCount > 0

	if sb.Has(Restrict) {
		return (!sb.Has(History) || history) &&
			(!sb.Has(Typed) || typed) &&
			(!sb.Has(Bookmark) || bookmarked) &&
			(!sb.Has(Tag) || tagged) &&
			(!sb.Has(OpenPage) || open)
	}
	return sb.Has(History) && history ||
		sb.Has(Typed) && typed ||
		sb.Has(Bookmark) && bookmarked ||
		sb.Has(Tag) && tagged ||
		sb.Has(OpenPage) && open
}

// finder reports whether token occurs in text.
type finder func(token, text string) bool

func finderFor(mb MatchBehavior) finder {
	switch mb {
	case Boundary, BoundaryAnywhere:
		return findOnBoundary
	case Beginning, BeginningCaseSensitive:
		return findAtBeginning
	default:
		return findAnywhere
	}
}

func findAnywhere(token, text string) bool    { return strings.Contains(text, token) }
func findAtBeginning(token, text string) bool { return strings.HasPrefix(text, token) }

// findOnBoundary reports whether token occurs at the start of text or right
// after a character that is neither a letter nor a digit.
func findOnBoundary(token, text string) bool {
	if token == "" {
		return true
	}
	for offset := 0; offset <= len(text)-len(token); {
		i := strings.Index(text[offset:], token)
		if i < 0 {
			return false
		}
		at := offset + i
		if at == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:at])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[at:])
		offset = at + size
	}
	return false
}

// fixupURL unescapes u and strips the parts users rarely type: the
// http, https and ftp schemes, a leading "www." and a trailing '/'.
func fixupURL(u string) string {
	if unescaped, err := url.PathUnescape(u); err == nil && utf8.ValidString(unescaped) {
		u = unescaped
	}
	for _, scheme := range []string{"http://", "https://", "ftp://"} {
		if hasPrefixFold(u, scheme) {
			u = u[len(scheme):]
			break
		}
	}
	if hasPrefixFold(u, "www.") {
		u = u[len("www."):]
	}
	return strings.TrimSuffix(u, "/")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
