package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"placesdb/internal/places"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	opts := places.Options{Registry: places.NewRegistry()}
	path := filepath.Join(t.TempDir(), "places.sqlite")
	db, err := places.Open(context.Background(), path, places.ReadWrite, opts.Registry.NewOwnerID(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func visit(t *testing.T, s *Store, url string, vt VisitType) Place {
	t.Helper()
	p, err := s.NoteVisit(context.Background(), Visit{URL: url, Type: vt})
	require.NoError(t, err)
	return p
}
