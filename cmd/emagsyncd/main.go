// emagsyncd is the long-running daemon: it periodically sweeps orphaned
// sync_logs rows left "running" by a crashed process (spec §4.4, §5) and
// always serves a progressws.Hub at /watch on a local address. No component
// broadcasts snapshots to that hub, so connected clients receive nothing.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/emagerp/synccore/internal/app"
	"github.com/emagerp/synccore/internal/config"
	"github.com/emagerp/synccore/internal/progressws"
)

const version = "0.1.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("emagsyncd starting")

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := progressws.NewHub()
	go serveWatch(hub)

	go sweepLoop(ctx, a, cfg.OrphanSweepTTL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping")
	cancel()
}

func sweepLoop(ctx context.Context, a *app.App, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			swept, err := a.Controller.SweepOrphans(ttl)
			if err != nil {
				log.Warn().Err(err).Msg("orphan sweep failed")
				continue
			}
			if swept > 0 {
				log.Info().Int("swept", swept).Msg("orphan sweep reclaimed stuck sync logs")
			}
		case <-ctx.Done():
			return
		}
	}
}

func serveWatch(hub *progressws.Hub) {
	mux := http.NewServeMux()
	mux.Handle("/watch", hub)
	addr := os.Getenv("EMAGSYNCD_WATCH_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8787"
	}
	log.Info().Str("addr", addr).Msg("progress watch server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Msg("progress watch server stopped")
	}
}
