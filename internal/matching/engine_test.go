package matching

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emagerp/synccore/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	return st
}

func seedProduct(t *testing.T, st *store.Store, p store.Product) store.Product {
	t.Helper()
	require.NoError(t, st.UpsertProduct(&p))
	return p
}

func TestPickBetter_TiesOnScoreBrokenByLengthDiffThenID(t *testing.T) {
	cur := &candidate{product: store.Product{ID: 5}, score: 0.9, lenDiff: 3}
	closer := &candidate{product: store.Product{ID: 9}, score: 0.9, lenDiff: 1}
	require.Same(t, closer, pickBetter(cur, closer), "smaller length difference should win over a higher id at equal score")

	sameLenDiff := &candidate{product: store.Product{ID: 2}, score: 0.9, lenDiff: 1}
	require.Same(t, sameLenDiff, pickBetter(closer, sameLenDiff), "smallest id is the final tiebreak once score and length difference match")
}

func TestAutoMatch_LinksExactEANAsPending(t *testing.T) {
	st := newTestStore(t)
	p := seedProduct(t, st, store.Product{
		Account: store.AccountMain, SKU: "SKU-1",
		EANs: store.StringSlice{"5941234567890"},
	})

	sp := store.SupplierProduct{
		SupplierID:       1,
		RawName:          "supplier listing",
		NormalizedTokens: store.StringSlice{"5941234567890"},
	}
	require.NoError(t, st.UpsertSupplierProduct(&sp))

	e := New(st, 0.75)
	require.NoError(t, e.AutoMatch(store.AccountMain, []store.SupplierProduct{sp}))

	unmatched, err := st.ListUnmatchedSupplierProducts()
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	require.NotNil(t, unmatched[0].LinkedLocalProductID)
	require.Equal(t, p.ID, *unmatched[0].LinkedLocalProductID)
	require.NotNil(t, unmatched[0].ManualConfirmed)
	require.False(t, *unmatched[0].ManualConfirmed)
}

func TestConfirm_RejectsSecondConfirmOnSameLocalProduct(t *testing.T) {
	st := newTestStore(t)
	p := seedProduct(t, st, store.Product{Account: store.AccountMain, SKU: "SKU-1"})

	linked := p.ID
	first := store.SupplierProduct{SupplierID: 1, LinkedLocalProductID: &linked}
	second := store.SupplierProduct{SupplierID: 2, LinkedLocalProductID: &linked}
	require.NoError(t, st.UpsertSupplierProduct(&first))
	require.NoError(t, st.UpsertSupplierProduct(&second))

	e := New(st, 0.75)
	require.NoError(t, e.Confirm(&first, "tester"))

	err := e.Confirm(&second, "tester")
	require.Error(t, err)
}

func TestUnmatch_ClearsAllMatchingFields(t *testing.T) {
	st := newTestStore(t)
	p := seedProduct(t, st, store.Product{Account: store.AccountMain, SKU: "SKU-1"})

	linked := p.ID
	score := 0.9
	confirmed := true
	sp := store.SupplierProduct{
		SupplierID: 1, LinkedLocalProductID: &linked,
		SimilarityScore: &score, ManualConfirmed: &confirmed, ConfirmedBy: "alice",
	}
	require.NoError(t, st.UpsertSupplierProduct(&sp))

	e := New(st, 0.75)
	require.NoError(t, e.Unmatch(&sp))

	require.Nil(t, sp.LinkedLocalProductID)
	require.Nil(t, sp.SimilarityScore)
	require.Nil(t, sp.ManualConfirmed)
	require.Empty(t, sp.ConfirmedBy)
}

func TestRematchAll_PreservesConfirmedMatches(t *testing.T) {
	st := newTestStore(t)
	p1 := seedProduct(t, st, store.Product{Account: store.AccountMain, SKU: "SKU-1", EANs: store.StringSlice{"111"}})
	_ = seedProduct(t, st, store.Product{Account: store.AccountMain, SKU: "SKU-2", EANs: store.StringSlice{"222"}})

	confirmedFlag := true
	confirmedID := p1.ID
	confirmedRow := store.SupplierProduct{
		SupplierID: 1, LinkedLocalProductID: &confirmedID, ManualConfirmed: &confirmedFlag,
	}
	require.NoError(t, st.UpsertSupplierProduct(&confirmedRow))

	pendingFlag := false
	pendingRow := store.SupplierProduct{
		SupplierID: 2, NormalizedTokens: store.StringSlice{"222"}, ManualConfirmed: &pendingFlag,
	}
	require.NoError(t, st.UpsertSupplierProduct(&pendingRow))

	e := New(st, 0.75)
	require.NoError(t, e.RematchAll(store.AccountMain))

	stillConfirmed, err := st.ConfirmedSupplierProducts()
	require.NoError(t, err)
	require.Len(t, stillConfirmed, 1)
	require.Equal(t, confirmedRow.ID, stillConfirmed[0].ID)
}
