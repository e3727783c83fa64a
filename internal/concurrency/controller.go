// Package concurrency implements the per-(account,resource) lock table from
// spec §4.4, component C4: at most one running sync per key, a busy
// rejection for a second concurrent request, cooperative cancellation, and
// an orphan sweep that reclaims rows left "running" by a crashed process.
package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emagerp/synccore/internal/emagerr"
	"github.com/emagerp/synccore/internal/naiveutc"
	"github.com/emagerp/synccore/internal/store"
)

// Key identifies one lockable sync slot.
type Key struct {
	Account  store.Account
	Resource store.Resource
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Account, k.Resource) }

// slot tracks one running task: its cancel func and the sync log it owns.
type slot struct {
	cancel    context.CancelFunc
	syncLogID uint
	startedAt time.Time
}

// Controller is the in-memory lock table, shared by every submitted task in
// the process. An optional RunnerLock backs it across processes (spec §9
// open question on multi-instance deployment); when nil the controller is
// single-process only.
type Controller struct {
	mu    sync.Mutex
	slots map[Key]*slot

	store *store.Store
	lock  RunnerLock

	now func() time.Time
}

// RunnerLock is the pluggable cross-process mutual exclusion backend (spec
// §9): InMemoryLock for a single process, or RedisLock for a fleet.
type RunnerLock interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Option customizes a Controller.
type Option func(*Controller)

func WithRunnerLock(l RunnerLock) Option { return func(c *Controller) { c.lock = l } }
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(st *store.Store, opts ...Option) *Controller {
	c := &Controller{
		slots: make(map[Key]*slot),
		store: st,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Task is the unit of work submitted under a key's lock.
type Task func(ctx context.Context) error

// Reservation is a slot claimed by Reserve. The caller must call Run exactly
// once, in the foreground or in a background goroutine, to execute the task
// and release the slot.
type Reservation struct {
	c      *Controller
	key    Key
	ctx    context.Context
	cancel context.CancelFunc
}

// Reserve claims key's exclusive slot synchronously, returning a Busy error
// immediately if the key is already running (spec §4.4 "a second concurrent
// request for the same key is rejected, not queued"). Splitting the Busy
// check from task execution lets a caller observe Busy before committing to
// run the task in the background (e.g. an async CLI mode that must still
// report Busy to its own exit code).
func (c *Controller) Reserve(ctx context.Context, key Key, syncLogID uint) (*Reservation, error) {
	if c.lock != nil {
		ok, err := c.lock.TryAcquire(ctx, key.String())
		if err != nil {
			return nil, emagerr.Wrap(emagerr.KindClient, "runner lock acquire failed", err)
		}
		if !ok {
			return nil, emagerr.Busy
		}
	}

	c.mu.Lock()
	if _, running := c.slots[key]; running {
		c.mu.Unlock()
		if c.lock != nil {
			if err := c.lock.Release(context.Background(), key.String()); err != nil {
				log.Warn().Err(err).Str("key", key.String()).Msg("concurrency: runner lock release failed")
			}
		}
		return nil, emagerr.Busy
	}
	taskCtx, cancel := context.WithCancel(ctx)
	c.slots[key] = &slot{cancel: cancel, syncLogID: syncLogID, startedAt: c.now()}
	c.mu.Unlock()

	return &Reservation{c: c, key: key, ctx: taskCtx, cancel: cancel}, nil
}

// Run executes fn under the reserved slot, releasing the slot and any
// runner lock when fn returns.
func (r *Reservation) Run(fn Task) error {
	defer func() {
		r.c.mu.Lock()
		delete(r.c.slots, r.key)
		r.c.mu.Unlock()
		r.cancel()
		if r.c.lock != nil {
			if err := r.c.lock.Release(context.Background(), r.key.String()); err != nil {
				log.Warn().Err(err).Str("key", r.key.String()).Msg("concurrency: runner lock release failed")
			}
		}
	}()
	return fn(r.ctx)
}

// Submit runs fn under key's exclusive lock. If the key is already running,
// Submit returns a Busy error immediately rather than queuing (spec §4.4
// "a second concurrent request for the same key is rejected, not queued").
func (c *Controller) Submit(ctx context.Context, key Key, syncLogID uint, fn Task) error {
	r, err := c.Reserve(ctx, key, syncLogID)
	if err != nil {
		return err
	}
	return r.Run(fn)
}

// IsRunning reports whether key currently holds a slot.
func (c *Controller) IsRunning(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[key]
	return ok
}

// Cancel requests cooperative cancellation of key's running task, if any. It
// returns false if nothing is running under key.
func (c *Controller) Cancel(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return false
	}
	s.cancel()
	return true
}

// RunningSyncLogID returns the sync log id owning key's slot, if running.
func (c *Controller) RunningSyncLogID(key Key) (uint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return 0, false
	}
	return s.syncLogID, true
}

// SweepOrphans reclaims sync_logs rows stuck in "running" with no
// corresponding in-memory slot (a crash or restart left them behind) by
// marking them failed. ttl guards against sweeping a row for a task that is
// genuinely still starting up in another goroutine within the same process
// (spec §4.4, §9 default 15m).
func (c *Controller) SweepOrphans(ttl time.Duration) (int, error) {
	running, err := c.store.RunningSyncLogs()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	owned := make(map[uint]bool, len(c.slots))
	for _, s := range c.slots {
		owned[s.syncLogID] = true
	}
	c.mu.Unlock()

	swept := 0
	now := c.now()
	for _, l := range running {
		if owned[l.ID] {
			continue
		}
		if l.StartedAt == nil || now.Sub(l.StartedAt.Time) < ttl {
			continue
		}
		l.Status = store.StatusFailed
		l.ErrorMessage = "orphaned: process restarted or crashed mid-sync"
		finishedAt := naiveutc.Wrap(now)
		l.FinishedAt = &finishedAt
		if err := c.store.UpdateSyncLog(&l); err != nil {
			log.Warn().Err(err).Uint("sync_log_id", l.ID).Msg("concurrency: failed to sweep orphaned sync log")
			continue
		}
		swept++
	}
	return swept, nil
}
