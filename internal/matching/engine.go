// Package matching implements the supplier-product-to-local-product
// correlation pipeline and pending/confirmed state machine from spec §4.5,
// component C5.
package matching

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/emagerp/synccore/internal/emagerr"
	"github.com/emagerp/synccore/internal/store"
)

// Engine runs the matching pipeline against a store's product catalog.
type Engine struct {
	store         *store.Store
	minSimilarity float64
}

func New(st *store.Store, minSimilarity float64) *Engine {
	return &Engine{store: st, minSimilarity: minSimilarity}
}

// candidate is one scored local product for a supplier product. lenDiff is
// the tie-break signal from spec §4.5 rule (b); it is 0 for the EAN/PNK
// stages, which have no length signal to compare.
type candidate struct {
	product store.Product
	score   float64
	lenDiff int
}

// bestCandidate runs the three-stage pipeline (exact EAN, PNK, Chinese-name
// similarity) in order and returns the first non-empty stage's winner,
// applying the tie-break rule within that stage: highest score, then
// smallest absolute length difference (approximated by name length delta
// for the similarity stage; EAN/PNK stages are exact matches with no
// length signal), then smallest local id.
func (e *Engine) bestCandidate(sp store.SupplierProduct, products []store.Product) (*candidate, bool) {
	if c, ok := matchByEAN(sp, products); ok {
		return c, true
	}
	if c, ok := matchByPNK(sp, products); ok {
		return c, true
	}
	return e.matchByChineseName(sp, products)
}

// matchByEAN scans a supplier product's normalized tokens for one matching
// any EAN on a local product; the ingestion adapter is expected to include
// a scanned EAN verbatim among NormalizedTokens when one was read off the
// packaging or supplier listing.
func matchByEAN(sp store.SupplierProduct, products []store.Product) (*candidate, bool) {
	var best *candidate
	for _, tok := range sp.NormalizedTokens {
		for _, p := range products {
			for _, ean := range p.EANs {
				if ean == tok {
					cand := candidate{product: p, score: 1.0}
					best = pickBetter(best, &cand)
				}
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func matchByPNK(sp store.SupplierProduct, products []store.Product) (*candidate, bool) {
	var best *candidate
	for _, tok := range sp.NormalizedTokens {
		for _, p := range products {
			if p.PartNumberKey != nil && *p.PartNumberKey == tok {
				cand := candidate{product: p, score: 1.0}
				best = pickBetter(best, &cand)
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (e *Engine) matchByChineseName(sp store.SupplierProduct, products []store.Product) (*candidate, bool) {
	var best *candidate
	for _, p := range products {
		if p.ChineseName == "" {
			continue
		}
		score := jaccardSimilarity(sp.RawName, p.ChineseName)
		if score < e.minSimilarity {
			continue
		}
		cand := candidate{product: p, score: score, lenDiff: absInt(len(sp.RawName) - len(p.ChineseName))}
		best = pickBetter(best, &cand)
	}
	return best, best != nil
}

// pickBetter applies the tie-break order from spec §4.5: highest score,
// then smallest absolute length difference, then smallest local id
// (deterministic final tiebreak).
func pickBetter(cur, next *candidate) *candidate {
	if cur == nil {
		return next
	}
	if next.score != cur.score {
		if next.score > cur.score {
			return next
		}
		return cur
	}
	if next.lenDiff != cur.lenDiff {
		if next.lenDiff < cur.lenDiff {
			return next
		}
		return cur
	}
	if next.product.ID < cur.product.ID {
		return next
	}
	return cur
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// AutoMatch scores every unmatched/pending supplier product against account's
// product catalog and links candidates scoring at or above the configured
// threshold, moving them into the pending state. Rows already confirmed are
// left untouched by the caller (AutoMatch only ever receives unmatched rows).
func (e *Engine) AutoMatch(account store.Account, supplierProducts []store.SupplierProduct) error {
	products, err := e.store.ListProducts(account)
	if err != nil {
		return err
	}
	// Deterministic processing order.
	sort.Slice(supplierProducts, func(i, j int) bool { return supplierProducts[i].ID < supplierProducts[j].ID })

	// Scoring is pure (read-only against products) and independent per row,
	// so it fans out across a bounded worker group; only the resulting
	// writes below are applied sequentially to keep output deterministic.
	candidates := make([]*candidate, len(supplierProducts))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(8)
	for i := range supplierProducts {
		i := i
		g.Go(func() error {
			c, ok := e.bestCandidate(supplierProducts[i], products)
			if ok {
				candidates[i] = c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range supplierProducts {
		c := candidates[i]
		if c == nil {
			continue
		}
		sp := supplierProducts[i]
		confirmed := false
		sp.LinkedLocalProductID = &c.product.ID
		sp.SimilarityScore = &c.score
		sp.ManualConfirmed = &confirmed
		if err := e.store.UpsertSupplierProduct(&sp); err != nil {
			return err
		}
	}
	return nil
}

// Confirm promotes a pending match to confirmed, enforcing the one-
// confirmed-match-per-local-product invariant (spec §4.5).
func (e *Engine) Confirm(sp *store.SupplierProduct, actor string) error {
	if sp.LinkedLocalProductID == nil {
		return emagerr.New(emagerr.KindClient, "cannot confirm an unmatched supplier product")
	}
	confirmedAlready, err := e.store.ConfirmedSupplierProducts()
	if err != nil {
		return err
	}
	for _, other := range confirmedAlready {
		if other.ID == sp.ID {
			continue
		}
		if other.LinkedLocalProductID != nil && *other.LinkedLocalProductID == *sp.LinkedLocalProductID {
			return emagerr.ConflictExists
		}
	}
	confirmed := true
	sp.ManualConfirmed = &confirmed
	sp.ConfirmedBy = actor
	return e.store.UpsertSupplierProduct(sp)
}

// Unmatch clears every matching field on sp, per the "match/unmatch
// round-trip leaves no residue" invariant (spec §8.1).
func (e *Engine) Unmatch(sp *store.SupplierProduct) error {
	sp.LinkedLocalProductID = nil
	sp.SimilarityScore = nil
	sp.ManualConfirmed = nil
	sp.ConfirmedBy = ""
	sp.ConfirmedAt = nil
	return e.store.UpsertSupplierProduct(sp)
}

// RematchAll unlinks every pending (never confirmed) supplier-product row,
// across all suppliers, then re-runs AutoMatch on those rows and the
// never-matched ones against account's catalog, preserving confirmed
// matches untouched (spec §4.5 "re-match operation").
func (e *Engine) RematchAll(account store.Account) error {
	unmatched, err := e.store.ListUnmatchedSupplierProducts()
	if err != nil {
		return err
	}

	var pending []store.SupplierProduct
	for _, sp := range unmatched {
		if sp.ManualConfirmed != nil && *sp.ManualConfirmed {
			continue // confirmed rows are never touched by re-match
		}
		sp.LinkedLocalProductID = nil
		sp.SimilarityScore = nil
		sp.ManualConfirmed = nil
		if err := e.store.UpsertSupplierProduct(&sp); err != nil {
			return err
		}
		pending = append(pending, sp)
	}

	return e.AutoMatch(account, pending)
}
