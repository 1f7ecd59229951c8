package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placesdb/internal/places/urlhash"
	"placesdb/internal/shared"
)

func TestNoteVisit_CreatesAndUpdatesPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	p, err := s.NoteVisit(ctx, Visit{URL: "https://Example.com/a", Title: "A", At: at})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", p.URL)
	assert.Equal(t, "A", p.Title)
	assert.EqualValues(t, 1, p.VisitCount)
	assert.True(t, at.Equal(p.LastVisit))
	assert.Len(t, p.GUID, 12)
	assert.EqualValues(t, 100, p.Frecency)

	p2, err := s.NoteVisit(ctx, Visit{URL: "https://example.com/a", Type: VisitTyped, At: at.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, "A", p2.Title, "empty title keeps the stored one")
	assert.EqualValues(t, 2, p2.VisitCount)
	assert.EqualValues(t, 1, p2.Typed)
	assert.True(t, at.Add(time.Minute).Equal(p2.LastVisit))
	assert.EqualValues(t, 2200, p2.Frecency)

	var hash int64
	require.NoError(t, s.DB().Read(ctx, func(ctx context.Context) error {
		return s.DB().Querier(ctx).QueryRowContext(ctx,
			"SELECT url_hash FROM moz_places WHERE id = ?", p.ID).Scan(&hash)
	}))
	assert.Equal(t, int64(urlhash.URL("https://example.com/a")), hash)
}

func TestNoteVisit_OlderVisitKeepsLastVisit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	_, err := s.NoteVisit(ctx, Visit{URL: "https://example.com/", At: at})
	require.NoError(t, err)
	p, err := s.NoteVisit(ctx, Visit{URL: "https://example.com/", At: at.Add(-time.Hour)})
	require.NoError(t, err)
	assert.True(t, at.Equal(p.LastVisit))
}

func TestNoteVisit_InvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.NoteVisit(ctx, Visit{URL: "no scheme here"})
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = s.NoteVisit(ctx, Visit{URL: "https://example.com/", Type: VisitType(42)})
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestNoteVisit_LinksOrigin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := visit(t, s, "https://user:pw@www.example.com:8443/x", VisitLink)

	var prefix, host, revHost string
	require.NoError(t, s.DB().Read(ctx, func(ctx context.Context) error {
		return s.DB().Querier(ctx).QueryRowContext(ctx, `
			SELECT o.prefix, o.host, o.rev_host FROM moz_origins o
			JOIN moz_places h ON h.origin_id = o.id WHERE h.id = ?`, p.ID).Scan(&prefix, &host, &revHost)
	}))
	assert.Equal(t, "https://", prefix)
	assert.Equal(t, "www.example.com:8443", host)
	assert.Equal(t, "3448:moc.elpmaxe.www.", revHost)
}

func TestFetchPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	visit(t, s, "https://example.com/", VisitLink)

	p, err := s.FetchPlace(ctx, "https://EXAMPLE.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", p.URL)

	_, err = s.FetchPlace(ctx, "https://example.com/missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestHostVisitCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	visit(t, s, "https://example.com/", VisitLink)
	visit(t, s, "https://example.com/", VisitLink)
	visit(t, s, "https://www.example.com/a", VisitLink)
	visit(t, s, "https://myexample.com/", VisitLink)
	visit(t, s, "https://example.com.evil/", VisitLink)

	count, err := s.HostVisitCount(ctx, "Example.COM")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	count, err = s.HostVisitCount(ctx, "www.example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = s.HostVisitCount(ctx, "nothing.test")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	_, err = s.HostVisitCount(ctx, "")
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestPlacesWithScheme(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	visit(t, s, "https://example.com/", VisitLink)
	visit(t, s, "https://example.com/", VisitLink)
	visit(t, s, "https://mozilla.org/", VisitLink)
	visit(t, s, "http://example.com/", VisitLink)
	visit(t, s, "ftp://files.example.com/", VisitLink)

	got, err := s.PlacesWithScheme(ctx, "https", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/", got[0].URL, "most frecent first")
	assert.Equal(t, "https://mozilla.org/", got[1].URL)

	got, err = s.PlacesWithScheme(ctx, "ftp", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.PlacesWithScheme(ctx, "HTTPS", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2, "scheme is case insensitive")

	got, err = s.PlacesWithScheme(ctx, "gopher", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
