package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer-platform/internal/activity"
	"dialer-platform/internal/agentauth"
	"dialer-platform/internal/config"
	"dialer-platform/internal/crm"
	"dialer-platform/internal/event"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/transfer"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := agentauth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	activitySvc := activity.NewService(activity.NewPostgresRepository(db))

	retrySched := retry.NewScheduler(retry.NewPostgresStore(db), activitySvc)

	transferStore := transfer.NewPostgresStore(db)
	transfers := transfer.NewCoordinator(transferStore, activitySvc)

	crmSvc := crm.NewService(crm.NewPostgresStore(db), activitySvc)

	processor := event.NewProcessor(
		event.NewPostgresStore(db),
		retrySched,
		transfers,
		crmSvc,
		cfg.Telephony.WebhookSecret,
	)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, db, httpapi.Handlers{
		Auth:      authManager,
		Transfers: transfers,
		Agents:    transferStore.GetAgentByEmail,
	}, event.Handler{Processor: processor}, authManager)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
