package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldsync/backend/internal/config"
	"github.com/fieldsync/backend/internal/gateway"
	"github.com/fieldsync/backend/internal/sync/scheduler"
)

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// withApp wires the full stack for one command invocation and tears it down
// afterwards.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(configFrom(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue and connectivity status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				status, err := a.service.Status()
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline action queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				before, err := a.queue.Len()
				if err != nil {
					return err
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := a.service.ManualSync(ctx); err != nil {
					return err
				}

				after, err := a.queue.Len()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d action(s), %d remaining\n", before-after, after)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall sync timeout")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background sync loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if a.cfg.Prefetch.Enabled {
					warmCache(ctx, a)
				}

				sched := scheduler.New(a.coordinator, a.monitor)
				sched.SetIntervals(a.cfg.Sync.DrainInterval(), a.cfg.Sync.PollInterval())
				sched.Start()
				defer sched.Stop()

				fmt.Fprintln(cmd.OutOrStdout(), "sync loop running, ctrl-c to stop")
				<-ctx.Done()
				return nil
			})
		},
	}
}

// warmCache fetches today's deliveries and prefetches their invoice details
// so detail lookups work offline. Failures here only cost warmth.
func warmCache(ctx context.Context, a *app) {
	groups, err := a.service.Deliveries(ctx, gateway.Filters{}, false)
	if err != nil {
		return
	}
	var invoiceIDs []string
	for _, g := range groups {
		if g.FirstInvoiceID != "" {
			invoiceIDs = append(invoiceIDs, g.FirstInvoiceID)
		}
	}
	a.service.Prefetch(invoiceIDs)
}

func newQueueCmd() *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline action queue",
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending actions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				actions, err := a.service.PendingActions()
				if err != nil {
					return err
				}
				if len(actions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tENQUEUED\tRETRIES")
				for _, action := range actions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
						action.ID,
						action.Kind,
						action.EnqueuedAtTime().Format(time.RFC3339),
						action.RetryCount,
					)
				}
				return w.Flush()
			})
		},
	})

	return queueCmd
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the delivery cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear all cached delivery data (the action queue is untouched)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.cache.InvalidateAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			})
		},
	})

	return cacheCmd
}
