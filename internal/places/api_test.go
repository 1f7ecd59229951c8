package places

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placesdb/internal/shared"
)

func openTestAPI(t *testing.T, path string) *API {
	t.Helper()
	return openTestAPIWith(t, path, testOptions())
}

func openTestAPIWith(t *testing.T, path string, opts Options) *API {
	t.Helper()
	api, err := OpenAPI(context.Background(), path, opts)
	require.NoError(t, err)
	return api
}

func TestOpenAPI_SharedPerPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "places.sqlite")
	opts := testOptions()

	first := openTestAPIWith(t, path, opts)
	second := openTestAPIWith(t, filepath.Join(dir, ".", "places.sqlite"), opts)
	assert.Same(t, first, second)

	other := openTestAPIWith(t, filepath.Join(dir, "other.sqlite"), opts)
	assert.NotSame(t, first, other)
	assert.NotEqual(t, first.Owner(), other.Owner())

	require.NoError(t, second.Close())
	require.NoError(t, first.Close())
	require.NoError(t, other.Close())

	reopened := openTestAPIWith(t, path, opts)
	defer reopened.Close()
	assert.NotSame(t, first, reopened)
}

func TestOpenAPI_OwnerIDsUniqueAcrossRegistries(t *testing.T) {
	dir := t.TempDir()

	a := openTestAPI(t, filepath.Join(dir, "a.sqlite"))
	defer a.Close()
	b := openTestAPI(t, filepath.Join(dir, "b.sqlite"))
	defer b.Close()

	assert.NotSame(t, a.Registry(), b.Registry())
	assert.NotEqual(t, a.Owner(), b.Owner())
}

func TestOpenAPI_SharedPathKeepsFirstOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.sqlite")
	opts := testOptions()

	api := openTestAPIWith(t, path, opts)
	defer api.Close()

	_, err := OpenAPI(context.Background(), path, testOptions())
	assert.True(t, shared.IsInvalidArgument(err))

	same := openTestAPIWith(t, path, Options{})
	defer same.Close()
	assert.Same(t, api, same)
	assert.Same(t, opts.Registry, same.Registry())
}

func TestOpenAPI_EmptyPath(t *testing.T) {
	_, err := OpenAPI(context.Background(), "", testOptions())
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestAPI_ExclusiveWriterConnections(t *testing.T) {
	api := openTestAPI(t, filepath.Join(t.TempDir(), "places.sqlite"))
	defer api.Close()
	ctx := context.Background()

	for _, kind := range []ConnectionType{ReadWrite, Sync} {
		t.Run(kind.String(), func(t *testing.T) {
			conn, err := api.OpenConnection(ctx, kind)
			require.NoError(t, err)
			assert.Equal(t, kind, conn.Kind())
			assert.Equal(t, api.Owner(), conn.Owner())

			_, err = api.OpenConnection(ctx, kind)
			assert.ErrorIs(t, err, shared.ErrConnectionAlreadyOpen)

			require.NoError(t, conn.Close())

			again, err := api.OpenConnection(ctx, kind)
			require.NoError(t, err)
			require.NoError(t, again.Close())
		})
	}
}

func TestAPI_UnlimitedReaders(t *testing.T) {
	api := openTestAPI(t, filepath.Join(t.TempDir(), "places.sqlite"))
	defer api.Close()
	ctx := context.Background()

	var readers []*DB
	for range 3 {
		conn, err := api.OpenConnection(ctx, ReadOnly)
		require.NoError(t, err)
		readers = append(readers, conn)
	}
	for _, conn := range readers {
		var n int
		require.NoError(t, scalar(t, conn, &n, "SELECT COUNT(*) FROM moz_bookmarks"))
		assert.Equal(t, 5, n)
		require.NoError(t, conn.Close())
	}
}

func TestAPI_ChangeTrackerSeesWriterAndSync(t *testing.T) {
	api := openTestAPI(t, filepath.Join(t.TempDir(), "places.sqlite"))
	defer api.Close()
	ctx := context.Background()

	writer, err := api.OpenConnection(ctx, ReadWrite)
	require.NoError(t, err)
	defer writer.Close()
	syncConn, err := api.OpenConnection(ctx, Sync)
	require.NoError(t, err)
	defer syncConn.Close()

	tracker := api.BookmarkChangeTracker()
	require.NoError(t, exec(t, syncConn, "UPDATE moz_bookmarks SET sync_change_counter = 0 WHERE guid = ?", MobileGUID))
	assert.True(t, tracker.Changed())

	tracker = api.BookmarkChangeTracker()
	require.NoError(t, exec(t, writer, "DELETE FROM moz_bookmarks WHERE guid = ?", MobileGUID))
	assert.True(t, tracker.Changed())
}

func TestAPI_ClosedRejectsConnections(t *testing.T) {
	api := openTestAPI(t, filepath.Join(t.TempDir(), "places.sqlite"))
	require.NoError(t, api.Close())

	_, err := api.OpenConnection(context.Background(), ReadOnly)
	assert.ErrorIs(t, err, shared.ErrClosed)
}

func TestAPI_InvalidConnectionType(t *testing.T) {
	api := openTestAPI(t, filepath.Join(t.TempDir(), "places.sqlite"))
	defer api.Close()

	_, err := api.OpenConnection(context.Background(), ConnectionType(0))
	assert.True(t, shared.IsInvalidArgument(err))
}
