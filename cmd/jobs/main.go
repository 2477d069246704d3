package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dialer-platform/internal/config"
	"dialer-platform/pkg/logger"

	"github.com/robfig/cron/v3"
)

// The jobs binary runs the batch side of the platform. One subcommand
// per pass so deployments can cron them independently, plus a daemon
// mode that schedules everything in-process.
//
//	jobs scheduler      one dialing pass over active campaigns
//	jobs retry-sweep    requeue due retry entries
//	jobs crm-sweep      re-post failed CRM deliveries
//	jobs janitor        reap stale active calls, complete exhausted campaigns
//	jobs pool-claim     top up active campaigns from the shared pool
//	jobs pool-release   return cooled-down pool leads to the shared pool
//	jobs daemon         run all of the above on timers
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: jobs <scheduler|retry-sweep|crm-sweep|janitor|pool-claim|pool-release|daemon>")
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	rt, err := newRuntime(rootCtx, cfg)
	if err != nil {
		log.Error("init failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	if command == "daemon" {
		if err := rt.runDaemon(rootCtx); err != nil {
			log.Error("daemon failed", "err", err)
			os.Exit(1)
		}
		return
	}

	pass, ok := rt.passes()[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
	if err := rt.runLeased(rootCtx, command, pass); err != nil {
		log.Error("pass failed", "command", command, "err", err)
		os.Exit(1)
	}
}

// runDaemon schedules every pass with cron. Per-pass leases still
// apply, so multiple daemon replicas coexist safely.
func (rt *runtime) runDaemon(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())

	schedules := map[string]string{
		"scheduler":    "0 * * * * *",    // every minute
		"retry-sweep":  "30 * * * * *",   // every minute, offset from the scheduler
		"crm-sweep":    "0 */5 * * * *",  // every 5 minutes
		"janitor":      "0 */10 * * * *", // every 10 minutes
		"pool-claim":   "0 */15 * * * *", // every 15 minutes
		"pool-release": "0 0 * * * *",    // hourly
	}

	for name, spec := range schedules {
		name, pass := name, rt.passes()[name]
		if _, err := c.AddFunc(spec, func() {
			if err := rt.runLeased(ctx, name, pass); err != nil {
				slog.Error("pass failed", "command", name, "err", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}

	slog.Info("jobs daemon started")
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	slog.Info("jobs daemon stopped")
	return nil
}

// passes maps subcommand names to one-shot pass functions.
func (rt *runtime) passes() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"scheduler": func(ctx context.Context) error {
			placed, err := rt.dialer.Run(ctx)
			if err != nil {
				return err
			}
			slog.Info("scheduler pass done", "calls_placed", placed)
			return nil
		},
		"retry-sweep": func(ctx context.Context) error {
			requeued, err := rt.retries.Sweep(ctx, rt.cfg.Dialer.RetrySweepLimit)
			if err != nil {
				return err
			}
			slog.Info("retry sweep done", "requeued", requeued)
			return nil
		},
		"crm-sweep": func(ctx context.Context) error {
			sent, err := rt.crm.Sweep(ctx, rt.cfg.Dialer.RetrySweepLimit)
			if err != nil {
				return err
			}
			slog.Info("crm sweep done", "sent", sent)
			return nil
		},
		"janitor": func(ctx context.Context) error {
			reaped, err := rt.dialer.ReapStaleCalls(ctx)
			if err != nil {
				return err
			}
			completed, err := rt.dialer.CompleteExhausted(ctx)
			if err != nil {
				return err
			}
			slog.Info("janitor pass done", "reaped", reaped, "campaigns_completed", completed)
			return nil
		},
		"pool-claim": func(ctx context.Context) error {
			created, err := rt.provisioner.TopUp(ctx, rt.cfg.Dialer.PoolTopUpTarget)
			if err != nil {
				return err
			}
			slog.Info("pool top-up done", "leads_created", created)
			return nil
		},
		"pool-release": func(ctx context.Context) error {
			released, err := rt.pool.ReleaseEligible(ctx, rt.cfg.Dialer.PoolReleaseCooldown)
			if err != nil {
				return err
			}
			slog.Info("pool release done", "released", released)
			return nil
		},
	}
}
