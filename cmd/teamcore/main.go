package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/crewware/teamcore/pkg/api"
	"github.com/crewware/teamcore/pkg/audit"
	"github.com/crewware/teamcore/pkg/collab"
	"github.com/crewware/teamcore/pkg/config"
	"github.com/crewware/teamcore/pkg/directory"
	"github.com/crewware/teamcore/pkg/groups"
	"github.com/crewware/teamcore/pkg/lifecycle"
	"github.com/crewware/teamcore/pkg/middleware"
	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/orgtree"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/resources"
	"github.com/crewware/teamcore/pkg/storage"
	"github.com/crewware/teamcore/pkg/team"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	workerLog := logrus.New()
	workerLog.SetFormatter(&logrus.JSONFormatter{})

	db, err := storage.Connect(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	err = storage.RunMigrations(ctx, db, []storage.Set{
		{Package: "team", Migrations: team.GetMigrations()},
		{Package: "orgtree", Migrations: orgtree.GetMigrations()},
		{Package: "groups", Migrations: groups.GetMigrations()},
		{Package: "perm", Migrations: perm.GetMigrations()},
		{Package: "resources", Migrations: resources.GetMigrations()},
		{Package: "lifecycle", Migrations: lifecycle.GetMigrations()},
	})
	if err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	teams := team.NewStore(db)
	teamService := team.NewService(db)
	orgStore := orgtree.NewStore(db)
	groupStore := groups.NewStore(db)
	ledger := perm.NewLedger(db, teams)
	registry := resources.DefaultRegistry()
	auditRec := audit.NewRecorder(db)
	apps := resources.NewApps(db, teams, ledger, auditRec)

	lookup := directory.NewCachedLookup(directory.NewStoreLookup(db), redisClient, directory.DefaultCacheConfig(), metrics)
	collabService := collab.NewService(db, ledger, lookup, metrics)

	lc := lifecycle.NewLifecycle(db, teams, groupStore, orgStore, ledger, registry, auditRec, workerLog, metrics)

	var sweeper *lifecycle.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = lifecycle.NewSweeper(lc, cfg.Sweeper.Schedule, workerLog)
		if err := sweeper.Start(); err != nil {
			logger.WithError(err).Error("failed to start departure sweeper")
			os.Exit(1)
		}
		defer sweeper.Stop()
	}

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		rateLimiter = middleware.NewRateLimiter(redisClient, nil, "teamcore:ratelimit")
	}

	server := api.NewServer(api.Deps{
		Teams:       teams,
		TeamService: teamService,
		Orgs:        orgStore,
		Groups:      groupStore,
		Ledger:      ledger,
		Collab:      collabService,
		Lifecycle:   lc,
		Apps:        apps,
		Audit:       auditRec,
		Lookup:      lookup,
		Logger:      logger,
		Metrics:     metrics,
		RateLimiter: rateLimiter,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.Handle("/healthz", health.LivenessHandler())
	healthMux.Handle("/readyz", health.ReadinessHandler())
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("api server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}
}
