package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emagerp/synccore/internal/store"
)

type fakeSource struct {
	pages [][]RemoteRecord
	total int
}

func (f *fakeSource) FetchPage(ctx context.Context, page int, modifiedSince *time.Time, filters map[string]string) ([]RemoteRecord, int, bool, error) {
	if page > len(f.pages) {
		return nil, f.total, true, nil
	}
	return f.pages[page-1], f.total, true, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	return st
}

func TestRun_CreatesProductsAcrossPagesAndSucceeds(t *testing.T) {
	st := newTestStore(t)
	e := New(st, time.Minute)

	src := &fakeSource{
		total: 2,
		pages: [][]RemoteRecord{
			{{RemoteID: 1, SKU: "A"}},
			{{RemoteID: 2, SKU: "B"}},
		},
	}

	id, err := e.StartSync(store.AccountMain, store.ResourceProducts, Options{Mode: store.ModeFull, ConflictStrategy: store.StrategyEmagPriority}, "tester")
	require.NoError(t, err)

	err = e.Run(context.Background(), id, src, store.AccountMain, store.ResourceProducts, Options{Mode: store.ModeFull, ConflictStrategy: store.StrategyEmagPriority})
	require.NoError(t, err)

	l, err := st.GetSyncLog(id)
	require.NoError(t, err)
	require.Equal(t, store.StatusSucceeded, l.Status)
	require.Equal(t, 2, l.CreatedCount)
	require.Equal(t, 2, l.ProcessedItems)

	products, err := st.ListProducts(store.AccountMain)
	require.NoError(t, err)
	require.Len(t, products, 2)
}

func TestRun_ReRunningUnchangedDataProducesNoNetWrites(t *testing.T) {
	st := newTestStore(t)
	e := New(st, time.Minute)

	record := RemoteRecord{RemoteID: 1, SKU: "A", Name: "Widget", Stock: 5}
	src := &fakeSource{total: 1, pages: [][]RemoteRecord{{record}}}

	opts := Options{Mode: store.ModeFull, ConflictStrategy: store.StrategyEmagPriority}

	id1, err := e.StartSync(store.AccountMain, store.ResourceProducts, opts, "tester")
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), id1, src, store.AccountMain, store.ResourceProducts, opts))

	id2, err := e.StartSync(store.AccountMain, store.ResourceProducts, opts, "tester")
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), id2, src, store.AccountMain, store.ResourceProducts, opts))

	l2, err := st.GetSyncLog(id2)
	require.NoError(t, err)
	require.Equal(t, 0, l2.CreatedCount)
	require.Equal(t, 0, l2.UpdatedCount)
}

func TestRun_FullModeDeactivatesProductsMissingFromRemoteSet(t *testing.T) {
	st := newTestStore(t)
	e := New(st, time.Minute)
	opts := Options{Mode: store.ModeFull, ConflictStrategy: store.StrategyEmagPriority}

	first := &fakeSource{total: 2, pages: [][]RemoteRecord{
		{{RemoteID: 1, SKU: "A", Active: true}, {RemoteID: 2, SKU: "B", Active: true}},
	}}
	id1, err := e.StartSync(store.AccountMain, store.ResourceProducts, opts, "tester")
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), id1, first, store.AccountMain, store.ResourceProducts, opts))

	// Second run's remote set drops SKU B.
	second := &fakeSource{total: 1, pages: [][]RemoteRecord{
		{{RemoteID: 1, SKU: "A", Active: true}},
	}}
	id2, err := e.StartSync(store.AccountMain, store.ResourceProducts, opts, "tester")
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), id2, second, store.AccountMain, store.ResourceProducts, opts))

	a, err := st.FindProductByRemoteID(store.AccountMain, 1)
	require.NoError(t, err)
	require.True(t, a.Active)

	b, err := st.FindProductByRemoteID(store.AccountMain, 2)
	require.NoError(t, err)
	require.False(t, b.Active)
}

func TestRun_CancelRequestedBeforeRunTransitionsToCancelled(t *testing.T) {
	st := newTestStore(t)
	e := New(st, time.Minute)

	src := &fakeSource{total: 1, pages: [][]RemoteRecord{{{RemoteID: 1, SKU: "A"}}}}
	opts := Options{Mode: store.ModeFull, ConflictStrategy: store.StrategyEmagPriority}

	id, err := e.StartSync(store.AccountMain, store.ResourceProducts, opts, "tester")
	require.NoError(t, err)
	require.NoError(t, e.RequestCancel(id))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = e.Run(ctx, id, src, store.AccountMain, store.ResourceProducts, opts)
	require.NoError(t, err)

	l, err := st.GetSyncLog(id)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, l.Status)
}
