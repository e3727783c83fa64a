// Package syncengine implements the paged pull algorithm, conflict
// resolution, and sync-log lifecycle from spec §4.3, component C3.
package syncengine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emagerp/synccore/internal/emagerr"
	"github.com/emagerp/synccore/internal/naiveutc"
	"github.com/emagerp/synccore/internal/store"
)

// RemoteSource pulls one page of remote records for a resource. Adapters
// over internal/emagapi implement this per resource (products, offers,
// orders); the engine itself is resource-agnostic beyond record shape.
type RemoteSource interface {
	FetchPage(ctx context.Context, page int, modifiedSince *time.Time, filters map[string]string) (records []RemoteRecord, totalItems int, acceptsModifiedSince bool, err error)
}

// Options configures one sync invocation (spec §4.3 "modes").
type Options struct {
	Mode             store.SyncMode
	ConflictStrategy store.ConflictStrategy
	Filters          map[string]string // selective mode predicates
	MaxPages         int
	PageSize         int
}

// Engine drives one (account, resource) sync task at a time; concurrency
// across keys is the concurrency controller's job (C4), not this package's.
type Engine struct {
	store   *store.Store
	bus     *progressBus
	wallCap time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func New(st *store.Store, wallClockCap time.Duration, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		bus:     newProgressBus(),
		wallCap: wallClockCap,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartSync durably writes a queued log row and returns its id; the caller
// (normally the concurrency controller) is responsible for invoking Run in
// a goroutine to actually execute it (spec §4.3 "non-blocking").
func (e *Engine) StartSync(account store.Account, resource store.Resource, opts Options, actor string) (uint, error) {
	log := &store.SyncLog{
		Account:  account,
		Resource: resource,
		Mode:     opts.Mode,
		Status:   store.StatusQueued,
		Actor:    actor,
	}
	if err := e.store.CreateSyncLog(log); err != nil {
		return 0, err
	}
	return log.ID, nil
}

// Status returns the most recent log for (account, resource) plus a live
// progress snapshot if one is running.
func (e *Engine) Status(account store.Account, resource store.Resource) (*store.SyncLog, *Progress, error) {
	l, err := e.store.LastSyncLog(account, resource)
	if err != nil {
		return nil, nil, err
	}
	if p, ok := e.bus.get(l.ID); ok {
		return l, &p, nil
	}
	return l, nil, nil
}

// RequestCancel flips the cancel flag on the log row; the running task
// observes it at the next page boundary (spec §4.3 "cancel").
func (e *Engine) RequestCancel(syncLogID uint) error {
	l, err := e.store.GetSyncLog(syncLogID)
	if err != nil {
		return err
	}
	l.CancelRequested = true
	return e.store.UpdateSyncLog(l)
}

// Run executes the paged pull algorithm for a previously queued sync log
// (spec §4.3 steps 1-4). It is meant to be invoked under the concurrency
// controller's per-key lock, with ctx derived from that lock's task
// context so Cancel's context cancellation and RequestCancel's flag both
// reach the running task.
func (e *Engine) Run(ctx context.Context, syncLogID uint, source RemoteSource, account store.Account, resource store.Resource, opts Options) error {
	l, err := e.store.GetSyncLog(syncLogID)
	if err != nil {
		return err
	}

	start := e.now()
	startedAt := naiveutc.Wrap(start)
	l.Status = store.StatusRunning
	l.StartedAt = &startedAt
	if err := e.store.UpdateSyncLog(l); err != nil {
		return err
	}

	var modifiedSince *time.Time
	if opts.Mode == store.ModeIncremental {
		if last, err := e.store.LastSyncLog(account, resource); err == nil && last.StartedAt != nil {
			cutoff := last.StartedAt.Time
			floor := start.Add(-24 * time.Hour)
			if cutoff.Before(floor) {
				cutoff = floor
			}
			modifiedSince = &cutoff
		}
	}

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	seen := make(map[int64]bool)
	page := 1
	for {
		select {
		case <-ctx.Done():
			return e.finish(l, store.StatusCancelled, "context cancelled")
		default:
		}
		if e.now().Sub(start) > e.wallCap {
			return e.finish(l, store.StatusFailed, string(emagerr.KindSyncTimedOut)+": wall-clock cap exceeded")
		}

		records, total, acceptsModifiedSince, err := source.FetchPage(ctx, page, modifiedSince, opts.Filters)
		if err != nil {
			return e.finish(l, store.StatusFailed, err.Error())
		}
		if opts.Mode == store.ModeIncremental && modifiedSince != nil && !acceptsModifiedSince {
			log.Warn().Uint("sync_log_id", l.ID).Msg("syncengine: remote rejected modified_since, falling back to full mode")
			modifiedSince = nil
			l.ErrorMessage = "incremental mode unsupported by remote; fell back to full"
		}
		if page == 1 {
			l.TotalItems = total
		}

		if len(records) == 0 {
			break
		}

		created, updated, failed, err := e.processPage(account, l.ID, records, opts.ConflictStrategy, seen)
		if err != nil {
			return e.finish(l, store.StatusFailed, err.Error())
		}

		l.ProcessedItems += len(records)
		l.CreatedCount += created
		l.UpdatedCount += updated
		l.FailedCount += failed
		if err := e.store.UpdateSyncLog(l); err != nil {
			return err
		}

		elapsed := e.now().Sub(start)
		e.bus.publish(computeProgress(l.ID, page, l.TotalItems, l.ProcessedItems, elapsed))

		fresh, err := e.store.GetSyncLog(l.ID)
		if err != nil {
			return err
		}
		if fresh.CancelRequested {
			return e.finish(l, store.StatusCancelled, "cancelled by request")
		}

		if page >= maxPages {
			break
		}
		page++
	}

	if opts.Mode == store.ModeFull {
		if err := e.deactivateMissing(account, l.ID, opts.ConflictStrategy, seen); err != nil {
			return e.finish(l, store.StatusFailed, err.Error())
		}
	}

	return e.finish(l, store.StatusSucceeded, "")
}

// deactivateMissing applies the conflict table's "Missing remotely" column
// (spec §4.3): any active, remote-sourced product not seen across the full
// page set this run is deactivated, except under the manual strategy, which
// leaves it untouched.
func (e *Engine) deactivateMissing(account store.Account, syncLogID uint, strategy store.ConflictStrategy, seen map[int64]bool) error {
	locals, err := e.store.ListActiveRemoteProducts(account)
	if err != nil {
		return err
	}
	for _, local := range locals {
		if local.RemoteID == nil || seen[*local.RemoteID] {
			continue
		}
		toWrite, dec := resolveMissing(strategy, &local)
		if err := e.audit(syncLogID, *local.RemoteID, dec); err != nil {
			return err
		}
		if toWrite != nil {
			if err := e.store.UpsertProduct(toWrite); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) processPage(account store.Account, syncLogID uint, records []RemoteRecord, strategy store.ConflictStrategy, seen map[int64]bool) (created, updated, failed int, err error) {
	for _, r := range records {
		seen[r.RemoteID] = true

		local, lookupErr := e.store.FindProductByRemoteID(account, r.RemoteID)
		if lookupErr != nil {
			local = nil
		}

		toWrite, dec := resolve(strategy, r, local, account, localNewerThanRemote)
		if err := e.audit(syncLogID, r.RemoteID, dec); err != nil {
			return created, updated, failed, err
		}
		if toWrite == nil {
			continue
		}
		if err := e.store.UpsertProduct(toWrite); err != nil {
			failed++
			continue
		}
		if dec == decisionCreated {
			created++
		} else if dec == decisionUpdated || dec == decisionQueuedManual {
			updated++
		}
	}

	return created, updated, failed, nil
}

func localNewerThanRemote(local *store.Product, remote RemoteRecord) bool {
	return local.UpdatedAt.Time.Unix() > remote.RemoteUpdatedAt
}

func (e *Engine) audit(syncLogID uint, remoteID int64, dec decision) error {
	return e.store.AppendAudit(&store.SyncAuditEntry{
		SyncLogID: syncLogID,
		RemoteID:  remoteID,
		Decision:  string(dec),
	})
}

func (e *Engine) finish(l *store.SyncLog, status store.SyncStatus, errMsg string) error {
	l.Status = status
	if errMsg != "" {
		l.ErrorMessage = errMsg
	}
	finished := naiveutc.Wrap(e.now())
	l.FinishedAt = &finished
	e.bus.clear(l.ID)
	return e.store.UpdateSyncLog(l)
}
