package storage

import (
	"context"
	"fmt"
	"strings"

	"placesdb/internal/places/match"
	"placesdb/internal/shared"
)

// SearchParams configures Autocomplete.
type SearchParams struct {
	Search         string
	Limit          int
	MatchBehavior  match.MatchBehavior
	SearchBehavior match.SearchBehavior
}

// Suggestion is one autocomplete result.
type Suggestion struct {
	URL        string
	Title      string
	Tags       []string
	Frecency   int64
	Bookmarked bool
}

const maxAutocompleteLimit = 100

// Autocomplete ranks places accepted by autocomplete_match by frecency.
// The query runs under the caller's context and aborts with
// shared.ErrInterrupted when the connection's interrupt handle fires.
func (s *Store) Autocomplete(ctx context.Context, p SearchParams) ([]Suggestion, error) {
	p.Search = strings.TrimSpace(p.Search)
	if p.Search == "" {
		return nil, nil
	}
	if p.Limit <= 0 || p.Limit > maxAutocompleteLimit {
		p.Limit = maxAutocompleteLimit
	}
	if p.SearchBehavior == 0 {
		p.SearchBehavior = match.DefaultSearchBehavior
	}
	if _, err := match.ParseMatchBehavior(int64(p.MatchBehavior)); err != nil {
		return nil, shared.MarkKind(err, shared.KindInvalidArgument)
	}
	if _, err := match.ParseSearchBehavior(int64(p.SearchBehavior)); err != nil {
		return nil, shared.MarkKind(err, shared.KindInvalidArgument)
	}

	var out []Suggestion
	err := s.db.Read(ctx, func(ctx context.Context) error {
		rows, err := s.db.Querier(ctx).QueryContext(ctx, `
			SELECT url, title, tags, frecency, bookmarked FROM (
				SELECT h.url AS url, COALESCE(h.title, '') AS title, h.frecency AS frecency,
					h.visit_count_local AS visits, h.typed AS typed,
					COALESCE((SELECT group_concat(t.tag, ',') FROM moz_tags t
						JOIN moz_tags_relation r ON r.tag_id = t.id
						WHERE r.place_id = h.id), '') AS tags,
					EXISTS (SELECT 1 FROM moz_bookmarks b WHERE b.fk = h.id) AS bookmarked
				FROM moz_places h
				WHERE h.frecency <> 0
			)
			WHERE autocomplete_match(?1, url, title, tags, visits, typed, bookmarked, NULL, ?2, ?3)
			ORDER BY frecency DESC, url
			LIMIT ?4`,
			p.Search, int64(p.MatchBehavior), int64(p.SearchBehavior), p.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				sg   Suggestion
				tags string
			)
			if err := rows.Scan(&sg.URL, &sg.Title, &tags, &sg.Frecency, &sg.Bookmarked); err != nil {
				return err
			}
			if tags != "" {
				sg.Tags = strings.Split(tags, ",")
			}
			out = append(out, sg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("autocomplete failed: %w", err)
	}
	return out, nil
}
