package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/emagerp/synccore/internal/store"
)

// RemoteRecord is one item decoded from a paged API response, the unit the
// conflict resolver operates on (spec §4.3 "For each remote record keyed by
// (account, remote_id)").
type RemoteRecord struct {
	RemoteID         int64
	SKU              string
	PartNumberKey    string
	Name             string
	Brand            string
	CategoryID       int64
	EANs             []string
	SalePrice        string
	MinSalePrice     string
	MaxSalePrice     string
	Stock            int
	ValidationStatus int
	OfferValidation  int
	Active           bool
	RemoteUpdatedAt  int64 // unix seconds, as reported by the remote
}

// contentHash is a stable digest of the fields that matter for idempotence;
// unchanged records hash identically across runs (spec §4.3 "Idempotence").
func (r RemoteRecord) contentHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%d|%d|%v|%d|%d|%v",
		r.RemoteID, r.SKU, r.Name, r.SalePrice, r.MinSalePrice, r.Stock,
		r.CategoryID, r.EANs, r.ValidationStatus, r.OfferValidation, r.Active)
	return hex.EncodeToString(h.Sum(nil))
}

// decision is one conflict-resolution outcome, recorded to the audit log.
type decision string

const (
	decisionCreated          decision = "created"
	decisionUpdated          decision = "updated"
	decisionSkippedUnchanged decision = "skipped_unchanged"
	decisionDeactivated      decision = "deactivated"
	decisionQueuedManual     decision = "queued_manual"
)

// resolve applies strategy to one remote record against its (possibly
// absent) local counterpart, per the table in spec §4.3, and returns the
// product row to persist (nil if nothing should be written) plus the
// decision for the audit log.
func resolve(strategy store.ConflictStrategy, remote RemoteRecord, local *store.Product, account store.Account, localNewerFn func(local *store.Product, remote RemoteRecord) bool) (*store.Product, decision) {
	hash := remote.contentHash()

	if local == nil {
		return newProductFromRemote(remote, account, hash), decisionCreated
	}
	if local.ContentHash == hash {
		return nil, decisionSkippedUnchanged
	}

	switch strategy {
	case store.StrategyLocalPriority:
		return nil, decisionSkippedUnchanged
	case store.StrategyManual:
		local.NeedsManualReview = true
		return local, decisionQueuedManual
	case store.StrategyNewestWins:
		if localNewerFn(local, remote) {
			return nil, decisionSkippedUnchanged
		}
		return mergeRemoteInto(local, remote, hash), decisionUpdated
	default: // emag_priority
		return mergeRemoteInto(local, remote, hash), decisionUpdated
	}
}

// resolveMissing handles a local product no longer present in the remote
// page set (spec §4.3 "Missing remotely" column: every strategy except
// manual deactivates; manual leaves it as-is).
func resolveMissing(strategy store.ConflictStrategy, local *store.Product) (*store.Product, decision) {
	if strategy == store.StrategyManual {
		return nil, decisionSkippedUnchanged
	}
	if !local.Active {
		return nil, decisionSkippedUnchanged
	}
	local.Active = false
	return local, decisionDeactivated
}

func newProductFromRemote(r RemoteRecord, account store.Account, hash string) *store.Product {
	p := &store.Product{
		Account:          account,
		SKU:              r.SKU,
		Name:             r.Name,
		Brand:            r.Brand,
		CategoryID:       r.CategoryID,
		EANs:             store.StringSlice(r.EANs),
		Stock:            r.Stock,
		ValidationStatus: r.ValidationStatus,
		OfferValidation:  r.OfferValidation,
		Active:           r.Active,
		ContentHash:      hash,
	}
	remoteID := r.RemoteID
	p.RemoteID = &remoteID
	if r.PartNumberKey != "" {
		pnk := r.PartNumberKey
		p.PartNumberKey = &pnk
	}
	p.SalePrice = parseDecimalOrZero(r.SalePrice)
	p.MinSalePrice = parseDecimalOrZero(r.MinSalePrice)
	p.MaxSalePrice = parseDecimalOrZero(r.MaxSalePrice)
	return p
}

func mergeRemoteInto(local *store.Product, r RemoteRecord, hash string) *store.Product {
	local.Name = r.Name
	local.Brand = r.Brand
	local.CategoryID = r.CategoryID
	local.EANs = store.StringSlice(r.EANs)
	local.Stock = r.Stock
	local.ValidationStatus = r.ValidationStatus
	local.OfferValidation = r.OfferValidation
	local.Active = r.Active
	local.ContentHash = hash
	local.SalePrice = parseDecimalOrZero(r.SalePrice)
	local.MinSalePrice = parseDecimalOrZero(r.MinSalePrice)
	local.MaxSalePrice = parseDecimalOrZero(r.MaxSalePrice)
	return local
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
