package frontier

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skreps/webgrab/internal/urlx"
)

func openTestTable(t *testing.T, path string) *SQLiteTable {
	t.Helper()
	table, err := OpenSQLite(context.Background(), path, 3, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func TestSQLiteTableRoundTrip(t *testing.T) {
	ctx := context.Background()
	table := openTestTable(t, filepath.Join(t.TempDir(), "frontier.db"))

	require.NoError(t, table.Add(ctx, []Candidate{
		{URL: urlx.MustParse("http://a.test/"), Level: 0},
		{URL: urlx.MustParse("http://a.test/b"), Level: 1, Referrer: "http://a.test/"},
		{URL: urlx.MustParse("http://a.test/b"), Level: 2}, // duplicate, ignored
	}))

	entry, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/", entry.URL)
	assert.Equal(t, 0, entry.Level)

	entry, err = table.GetAndClaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/b", entry.URL)
	assert.Equal(t, 1, entry.Level, "duplicate insert must not change the first-seen level")
	assert.Equal(t, "http://a.test/", entry.Referrer)

	_, err = table.GetAndClaim(ctx)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestSQLiteTableErrorCycle(t *testing.T) {
	ctx := context.Background()
	table := openTestTable(t, filepath.Join(t.TempDir(), "frontier.db"))
	require.NoError(t, table.Add(ctx, []Candidate{{URL: urlx.MustParse("http://a.test/")}}))

	for i := 0; i < 3; i++ {
		entry, err := table.GetAndClaim(ctx)
		require.NoError(t, err, "cycle %d", i)
		assert.Equal(t, i, entry.Tries)
		require.NoError(t, table.SetError(ctx, entry.URL))
	}

	_, err := table.GetAndClaim(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	counts, err := table.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Errored)
}

func TestSQLiteTableResume(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "frontier.db")

	table, err := OpenSQLite(ctx, path, 3, nil)
	require.NoError(t, err)
	require.NoError(t, table.Add(ctx, []Candidate{
		{URL: urlx.MustParse("http://a.test/done")},
		{URL: urlx.MustParse("http://a.test/interrupted")},
	}))

	done, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	require.NoError(t, table.SetDone(ctx, done.URL))

	// Claim the second entry but never finalize it, simulating a crash.
	_, err = table.GetAndClaim(ctx)
	require.NoError(t, err)
	require.NoError(t, table.Close())

	reopened := openTestTable(t, path)
	counts, err := reopened.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Done, "done entries survive restart")
	assert.Equal(t, int64(1), counts.Todo, "interrupted entry is re-queued")

	entry, err := reopened.GetAndClaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/interrupted", entry.URL, "done entry must not be re-offered")
}
