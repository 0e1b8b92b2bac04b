package frontier

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skreps/webgrab/internal/urlx"
)

func candidates(urls ...string) []Candidate {
	out := make([]Candidate, 0, len(urls))
	for _, u := range urls {
		out = append(out, Candidate{URL: urlx.MustParse(u)})
	}
	return out
}

func TestMemoryTableAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(3)

	require.NoError(t, table.Add(ctx, candidates("http://a.test/", "http://a.test/")))
	require.NoError(t, table.Add(ctx, candidates("http://a.test/")))

	counts, err := table.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Todo)
}

func TestMemoryTableRediscoveryOfDoneIsNoOp(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(3)

	require.NoError(t, table.Add(ctx, candidates("http://a.test/")))
	entry, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	require.NoError(t, table.SetDone(ctx, entry.URL))

	// Rediscovered via a different referrer: dedup wins.
	require.NoError(t, table.Add(ctx, []Candidate{{URL: urlx.MustParse("http://a.test/"), Level: 5, Referrer: "http://b.test/"}}))

	_, err = table.GetAndClaim(ctx)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryTableClaimTransitions(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(3)
	require.NoError(t, table.Add(ctx, candidates("http://a.test/")))

	entry, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/", entry.URL)
	assert.Equal(t, StatusInProgress, entry.Status)

	_, err = table.GetAndClaim(ctx)
	require.ErrorIs(t, err, ErrEmpty, "claimed entry must not be offered twice")
}

func TestMemoryTableConcurrentClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(3)
	require.NoError(t, table.Add(ctx, candidates(
		"http://a.test/1", "http://a.test/2", "http://a.test/3", "http://a.test/4",
	)))

	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				entry, err := table.GetAndClaim(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				claimed[entry.URL]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 4)
	for url, n := range claimed {
		assert.Equal(t, 1, n, "url %s claimed more than once", url)
	}
}

func TestMemoryTableErrorRequeuesUntilMaxTries(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(3)
	require.NoError(t, table.Add(ctx, candidates("http://a.test/")))

	// Three claim/error cycles: the first two re-queue, the third is terminal.
	for i := 0; i < 3; i++ {
		entry, err := table.GetAndClaim(ctx)
		require.NoError(t, err, "cycle %d", i)
		require.NoError(t, table.SetError(ctx, entry.URL))
	}

	_, err := table.GetAndClaim(ctx)
	require.ErrorIs(t, err, ErrEmpty, "entry at max tries must never be re-queued")

	counts, err := table.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Errored)
	assert.True(t, counts.Drained())
}

func TestMemoryTableClaimOrderIsFIFO(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(1)
	require.NoError(t, table.Add(ctx, candidates("http://a.test/1", "http://a.test/2")))

	first, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/1", first.URL)

	// Discoveries enqueue behind existing work.
	require.NoError(t, table.Add(ctx, candidates("http://a.test/3")))
	second, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/2", second.URL)
}
