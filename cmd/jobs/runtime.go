package main

import (
	"context"
	"database/sql"
	"log/slog"

	"dialer-platform/internal/activity"
	"dialer-platform/internal/config"
	"dialer-platform/internal/crm"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/pool"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/utils"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// runtime holds the shared connections and services every pass needs.
type runtime struct {
	cfg config.Config
	db  *sql.DB
	rdb *redis.Client

	dialer      *dialer.Scheduler
	retries     *retry.Scheduler
	crm         *crm.Service
	pool        *pool.Allocator
	provisioner *pool.Provisioner
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, err
	}

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		db.Close()
		return nil, err
	}

	activitySvc := activity.NewService(activity.NewPostgresRepository(db))

	dialerSched := dialer.NewScheduler(
		dialer.NewPostgresStore(db),
		telephony.NewClient(cfg.Telephony),
		activitySvc,
		dialer.Config{
			WebhookURL:    cfg.WebhookURL(),
			WebhookSecret: cfg.Telephony.WebhookSecret,
			CallThrottle:  cfg.Dialer.CallThrottle,
			StaleCallTTL:  cfg.Dialer.StaleCallTTL,
		},
	)

	return &runtime{
		cfg:         cfg,
		db:          db,
		rdb:         rdb,
		dialer:      dialerSched,
		retries:     retry.NewScheduler(retry.NewPostgresStore(db), activitySvc),
		crm:         crm.NewService(crm.NewPostgresStore(db), activitySvc),
		pool:        pool.NewAllocator(db),
		provisioner: pool.NewProvisioner(pool.NewPostgresProvisionStore(db)),
	}, nil
}

func (rt *runtime) Close() {
	rt.rdb.Close()
	rt.db.Close()
}

// runLeased executes one pass under a per-pass Redis lease so overlapping
// cron fires and parallel deployments never run the same pass twice.
func (rt *runtime) runLeased(ctx context.Context, name string, pass func(context.Context) error) error {
	key := "jobs:lease:" + name
	token := uuid.NewString()

	ok, err := utils.AcquireLease(ctx, rt.rdb, key, token, rt.cfg.Dialer.LeaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("pass skipped, lease held elsewhere", "command", name)
		return nil
	}
	defer func() {
		if err := utils.ReleaseLease(ctx, rt.rdb, key, token); err != nil {
			slog.Warn("lease release failed", "command", name, "err", err)
		}
	}()

	return pass(ctx)
}
