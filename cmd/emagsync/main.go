// emagsync is the operator-facing batch CLI for the eMAG marketplace sync
// core (spec §6.5): submit syncs, re-run matching, and print adjusted
// reorder quantities. It has no commands to poll status, cancel a sync, or
// draft purchase orders.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/emagerp/synccore/internal/app"
	"github.com/emagerp/synccore/internal/concurrency"
	"github.com/emagerp/synccore/internal/config"
	"github.com/emagerp/synccore/internal/emagapi"
	"github.com/emagerp/synccore/internal/emagerr"
	"github.com/emagerp/synccore/internal/store"
	"github.com/emagerp/synccore/internal/syncengine"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "emagsync",
	Short:   "eMAG marketplace synchronization core CLI",
	Version: version,
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return app.New(cfg)
}

func init() {
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(reorderCmd())
}

func syncCmd() *cobra.Command {
	var accountFlag, resourceFlag, modeFlag string
	var maxPages int
	var async bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Submit a marketplace sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			resource := store.Resource(resourceFlag)
			mode := store.SyncMode(modeFlag)
			accounts := []store.Account{store.Account(accountFlag)}
			if accountFlag == "both" {
				accounts = []store.Account{store.AccountMain, store.AccountFBE}
			}

			for _, account := range accounts {
				client, ok := a.Clients[string(account)]
				if !ok {
					fmt.Fprintf(os.Stderr, "unknown account %q\n", account)
					os.Exit(1)
				}

				opts := syncengine.Options{
					Mode:             mode,
					ConflictStrategy: store.ConflictStrategy(a.Config.DefaultConflictStrategy),
					MaxPages:         maxPages,
					PageSize:         a.Config.DefaultPageSize,
				}

				syncLogID, err := a.SyncEngine.StartSync(account, resource, opts, "cli")
				if err != nil {
					return err
				}

				key := concurrency.Key{Account: account, Resource: resource}
				source := emagapi.NewProductSource(client, a.Config.DefaultPageSize)

				run := func(ctx context.Context) error {
					return a.SyncEngine.Run(ctx, syncLogID, source, account, resource, opts)
				}

				if async {
					// The busy slot check must happen before we print success
					// and return: only the task itself (run) is backgrounded,
					// so a Busy rejection is still observable on this exit
					// code rather than silently logged from a goroutine after
					// the process has already reported success (spec §6.5
					// "exit ... 2 on Busy").
					reservation, err := a.Controller.Reserve(context.Background(), key, syncLogID)
					if err != nil {
						if errors.Is(err, emagerr.Busy) {
							os.Exit(2)
						}
						return err
					}
					go func() {
						if err := reservation.Run(run); err != nil {
							log.Error().Err(err).Msg("sync failed")
						}
					}()
					fmt.Printf("submitted sync_log_id=%d account=%s resource=%s (async)\n", syncLogID, account, resource)
					continue
				}

				if err := a.Controller.Submit(context.Background(), key, syncLogID, run); err != nil {
					if errors.Is(err, emagerr.Busy) {
						os.Exit(2)
					}
					return err
				}
				fmt.Printf("completed sync_log_id=%d account=%s resource=%s\n", syncLogID, account, resource)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "main|fbe|both")
	cmd.Flags().StringVar(&resourceFlag, "resource", "products", "products|offers|orders")
	cmd.Flags().StringVar(&modeFlag, "mode", "full", "full|incremental|selective")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap override")
	cmd.Flags().BoolVar(&async, "async", false, "submit and return immediately")
	cmd.MarkFlagRequired("account")

	return cmd
}

func matchCmd() *cobra.Command {
	var accountFlag string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Re-run the matching engine for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			return a.Matching.RematchAll(store.Account(accountFlag))
		},
	}
	cmd.Flags().StringVar(&accountFlag, "account", "main", "main|fbe")
	return cmd
}

func reorderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reorder",
		Short: "Compute adjusted reorder quantities for items below their reorder point",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			items, err := a.Store.ListInventoryBelowReorderPoint()
			if err != nil {
				return err
			}
			pending, err := a.Store.PendingOrderedQtyByProduct()
			if err != nil {
				return err
			}
			for _, item := range items {
				qty := a.Reorder.AdjustedReorderQuantity(item, pending)
				fmt.Printf("product_id=%d warehouse_id=%d reorder_qty=%d\n", item.ProductID, item.WarehouseID, qty)
			}
			return nil
		},
	}
	return cmd
}
