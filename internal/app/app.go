// Package app wires the sync core's components into a single runnable
// instance: store, per-account API clients, rate limiter, concurrency
// controller, and the three domain engines. cmd/ entrypoints build one App
// and drive it.
package app

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emagerp/synccore/internal/concurrency"
	"github.com/emagerp/synccore/internal/config"
	"github.com/emagerp/synccore/internal/emagapi"
	"github.com/emagerp/synccore/internal/matching"
	"github.com/emagerp/synccore/internal/naiveutc"
	"github.com/emagerp/synccore/internal/notify"
	"github.com/emagerp/synccore/internal/ratelimit"
	"github.com/emagerp/synccore/internal/reorder"
	"github.com/emagerp/synccore/internal/store"
	"github.com/emagerp/synccore/internal/syncengine"
)

// App bundles every wired component for one process.
type App struct {
	Config      *config.Config
	Store       *store.Store
	Limiter     *ratelimit.Limiter
	Clients     map[string]*emagapi.Client // keyed by account name
	Controller  *concurrency.Controller
	SyncEngine  *syncengine.Engine
	Matching    *matching.Engine
	Reorder     *reorder.Engine
	Notifier    *notify.Notifier
}

// New constructs and wires every component from cfg.
func New(cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	limits := make(map[ratelimit.Class]ratelimit.Limits, len(cfg.RateLimits))
	for class, l := range cfg.RateLimits {
		limits[ratelimit.Class(class)] = ratelimit.Limits{PerSecond: l.PerSecond, PerMinute: l.PerMinute}
	}
	limiter := ratelimit.New(limits, ratelimit.WithRNG(rand.New(rand.NewSource(time.Now().UnixNano()))))

	clients := make(map[string]*emagapi.Client, len(cfg.Accounts))
	for name, acc := range cfg.Accounts {
		clients[name] = emagapi.New(
			emagapi.Account{Name: acc.Name, BaseURL: acc.BaseURL, APIUser: acc.APIUser, APIKey: acc.APIKey},
			emagapi.Config{
				ConnectTimeout:   cfg.HTTP.ConnectTimeout,
				TotalTimeout:     cfg.HTTP.TotalTimeout,
				MaxAttempts:      cfg.HTTP.MaxAttempts,
				BackoffBase:      cfg.HTTP.BackoffBase,
				RetryBudget:      cfg.HTTP.RetryBudget,
				FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
				OpenDuration:     cfg.CircuitBreaker.OpenDuration,
			},
			limiter,
		)
	}

	var runnerLock concurrency.RunnerLock
	if cfg.RedisAddr != "" {
		runnerLock = newRedisLock(cfg.RedisAddr)
	}
	controllerOpts := []concurrency.Option{}
	if runnerLock != nil {
		controllerOpts = append(controllerOpts, concurrency.WithRunnerLock(runnerLock))
	}
	controller := concurrency.New(st, controllerOpts...)

	se := syncengine.New(st, cfg.SyncWallClockCap)
	me := matching.New(st, cfg.MinSimilarity)

	seq := 0
	re := reorder.New(st, cfg.Reorder.CNYExchangeRate, func() naiveutc.Time { return naiveutc.Wrap(time.Now()) }, func() int { seq++; return seq })

	notifier, err := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("app: telegram notifier disabled")
		notifier = nil
	}

	return &App{
		Config:     cfg,
		Store:      st,
		Limiter:    limiter,
		Clients:    clients,
		Controller: controller,
		SyncEngine: se,
		Matching:   me,
		Reorder:    re,
		Notifier:   notifier,
	}, nil
}
