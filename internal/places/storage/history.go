package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"placesdb/internal/places/urlkey"
	"placesdb/internal/shared"
)

// VisitType is the transition that led to a visit.
type VisitType int

const (
	VisitLink VisitType = iota + 1
	VisitTyped
	VisitBookmark
	VisitEmbed
	VisitRedirectPermanent
	VisitRedirectTemporary
	VisitDownload
	VisitFramedLink
	VisitReload
)

func (v VisitType) Valid() bool {
	return v >= VisitLink && v <= VisitReload
}

// Visit is one observed page visit.
type Visit struct {
	URL   string
	Title string
	Type  VisitType
	// At defaults to now() when zero.
	At time.Time
}

// NoteVisit records a visit, creating the place on first sight, and returns
// the updated place.
func (s *Store) NoteVisit(ctx context.Context, v Visit) (Place, error) {
	if v.Type == 0 {
		v.Type = VisitLink
	}
	if !v.Type.Valid() {
		return Place{}, shared.InvalidArgumentf("unknown visit type %d", int(v.Type))
	}
	key, err := canonical(v.URL)
	if err != nil {
		return Place{}, err
	}

	var at any
	if !v.At.IsZero() {
		at = v.At.UnixMilli()
	}

	var place Place
	err = s.db.Write(ctx, func(ctx context.Context) error {
		q := s.db.Querier(ctx)
		id, err := ensurePlace(ctx, q, key, v.Title)
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO moz_historyvisits (place_id, visit_date, visit_type)
			VALUES (?, COALESCE(?, now()), ?)`, id, at, int(v.Type)); err != nil {
			return fmt.Errorf("failed to insert visit: %w", err)
		}

		typed := 0
		if v.Type == VisitTyped {
			typed = 1
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE moz_places SET
				title = COALESCE(NULLIF(?2, ''), title),
				visit_count_local = visit_count_local + 1,
				last_visit_date_local = MAX(last_visit_date_local,
					(SELECT MAX(visit_date) FROM moz_historyvisits WHERE place_id = ?1)),
				typed = typed + ?3
			WHERE id = ?1`, id, v.Title, typed); err != nil {
			return fmt.Errorf("failed to update place: %w", err)
		}
		if err := updateFrecency(ctx, q, id); err != nil {
			return err
		}

		place, err = fetchPlace(ctx, q, key.URL)
		return err
	})
	return place, err
}

// HostVisitCount sums local visits to host and all of its subdomains with a
// range scan over rev_host.
func (s *Store) HostVisitCount(ctx context.Context, host string) (int64, error) {
	ascii, err := urlkey.HostToASCII(host)
	if err != nil {
		return 0, shared.MarkKind(err, shared.KindInvalidArgument)
	}
	if ascii == "" {
		return 0, shared.InvalidArgumentf("empty host")
	}

	var count int64
	err = s.db.Read(ctx, func(ctx context.Context) error {
		// "moc.elpmaxe." and every "moc.elpmaxe.*" sort below "moc.elpmaxe/".
		return s.db.Querier(ctx).QueryRowContext(ctx, `
			SELECT COALESCE(SUM(visit_count_local), 0) FROM moz_places
			WHERE rev_host >= reverse_host(?1)
			  AND rev_host < substr(reverse_host(?1), 1, length(?1)) || '/'`,
			ascii).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count host visits: %w", err)
	}
	return count, nil
}

// PlacesWithScheme lists places whose URL starts with scheme, most frecent
// first, using the prefix hash range on url_hash.
func (s *Store) PlacesWithScheme(ctx context.Context, scheme string, limit int) ([]Place, error) {
	if scheme == "" {
		return nil, shared.InvalidArgumentf("empty scheme")
	}
	if limit <= 0 {
		limit = 100
	}
	// Stored URLs are canonical, so their schemes are lower case.
	prefix := strings.ToLower(scheme) + ":"

	var out []Place
	err := s.db.Read(ctx, func(ctx context.Context) error {
		rows, err := s.db.Querier(ctx).QueryContext(ctx, `SELECT `+placeColumns+` FROM moz_places
			WHERE url_hash BETWEEN hash(?1, 'prefix_lo') AND hash(?1, 'prefix_hi')
			  AND substr(url, 1, length(?1)) = ?1
			ORDER BY frecency DESC, id
			LIMIT ?2`, prefix, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPlace(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list places with scheme %s: %w", scheme, err)
	}
	return out, nil
}
