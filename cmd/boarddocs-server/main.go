// Package main runs the board documentation server: webhook intake, webhook
// reconciliation, the generation worker pool and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"

	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/cache"
	"github.com/autodocgen/boarddocs/pkg/config"
	"github.com/autodocgen/boarddocs/pkg/credential"
	"github.com/autodocgen/boarddocs/pkg/database"
	"github.com/autodocgen/boarddocs/pkg/dispatch"
	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/generator"
	"github.com/autodocgen/boarddocs/pkg/ha"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/notify"
	"github.com/autodocgen/boarddocs/pkg/reconcile"
	"github.com/autodocgen/boarddocs/pkg/server"
	"github.com/autodocgen/boarddocs/pkg/trello"
)

func main() {
	fs := pflag.NewFlagSet("boarddocs-server", pflag.ExitOnError)
	config.RegisterFlags(fs)
	// glog registers its flags on the standard flag set.
	fs.AddGoFlagSet(flag.CommandLine)
	_ = fs.Parse(os.Args[1:])
	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	ha.RouteKlog(logger)

	loader, err := config.NewLoader(fs)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	cfg, err := loader.Config()
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("starting boarddocs server",
		"listen", cfg.Listen,
		"database", cfg.Database.Type,
		"callback", cfg.Callback.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	haCfg := ha.HAConfigFromEnv()
	var locker ha.MigrationLocker
	if haCfg.MigrationLockEnabled {
		locker = ha.NewMigrationLocker(db, ha.MigrationLockName)
	}
	if err := database.Migrate(ctx, db, locker); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	tokens := credential.NewStore(db)
	mappings := board.NewStore(db)
	notes := notify.NewStore(db)
	jobStore := jobs.NewJobStore(db)

	provider := trello.NewClient(cfg.Trello.BaseURL, cfg.Trello.APIKey, cfg.Trello.Timeout)
	if cfg.Trello.APIKey == "" {
		logger.Warn("TRELLO_API_KEY is not set, provider calls will be rejected")
	}
	if cfg.Generator.URL == "" {
		logger.Warn("GENERATOR_URL is not set, document generation will fail")
	}
	gen := generator.NewHTTPGenerator(cfg.Generator.URL, cfg.Generator.Timeout)

	cacheCfg := cache.CacheConfigFromEnv()
	responses := cache.NewResponseCache(cacheCfg)

	docOpts := []docs.Option{
		docs.WithTimeout(cfg.Generator.Timeout),
		docs.WithLogger(logger),
		docs.OnGenerated(func(a *docs.Artifact) { responses.InvalidateOwner(a.OwnerID) }),
	}
	if cacheCfg.Enabled {
		docOpts = append(docOpts, docs.WithLRU(cache.NewLRU[*docs.Artifact](cacheCfg.MaxSize, cacheCfg.ArtifactTTL)))
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		docOpts = append(docOpts, docs.WithLocker(docs.NewRedisLocker(rdb, 2*cfg.Generator.Timeout)))
		logger.Info("using redis generation lock", "addr", cfg.Redis.Addr)
	}
	docCache := docs.NewCache(docs.NewStore(db), tokens, mappings, provider, gen, docOpts...)

	jobCfg := jobs.JobConfigFromEnv()
	if jobCfg.NotifyChannel != "" {
		jobStore.EnableNotify(jobCfg.NotifyChannel)
	}
	pool := jobs.NewWorkerPool(jobStore, docCache, jobCfg, logger)
	if jobCfg.NotifyChannel != "" && db.Dialector.Name() == "postgres" {
		pool.SetNotifier(jobs.NewPQNotifier(cfg.Database.DSN, jobCfg.NotifyChannel, logger))
	}

	dispatcher := dispatch.NewDispatcher(mappings, jobStore, notes,
		dispatch.WithWake(pool.Wake),
		dispatch.WithOwnerHook(responses.InvalidateOwner),
		dispatch.WithLogger(logger))
	reconciler := reconcile.NewReconciler(tokens, mappings, provider,
		cfg.Callback.URL, cfg.Reconcile.RegistrationDelay, logger)

	srv := server.NewServer(server.Deps{
		DB:         db,
		Tokens:     tokens,
		Provider:   provider,
		Reconciler: reconciler,
		Dispatcher: dispatcher,
		Docs:       docCache,
		Jobs:       jobStore,
		Notes:      notes,
		Responses:  responses,
	},
		server.WithOrigins(cfg.Frontend.Origins),
		server.WithNotificationLimit(cfg.Notifications.Limit),
		server.WithWake(pool.Wake),
		server.WithLogger(logger))

	// Only settings read per request or per registration follow file edits;
	// everything else needs a restart.
	if loader.Watch(func(c *config.Config) {
		srv.SetNotificationLimit(c.Notifications.Limit)
		reconciler.SetRegistrationDelay(c.Reconcile.RegistrationDelay)
		logger.Info("config reloaded",
			"notificationLimit", c.Notifications.Limit,
			"registrationDelay", c.Reconcile.RegistrationDelay.String())
	}) {
		logger.Info("watching config file for changes")
	}

	go pool.Run(ctx)

	elector := newElector(haCfg, logger)
	if cfg.Reconcile.StartupSweep {
		elector.AddTask("startup-sweep", func(ctx context.Context) {
			if _, err := reconciler.Sweep(ctx); err != nil {
				logger.Error("startup reconcile sweep failed", "error", err)
			}
		})
	}
	elector.AddTask("reconcile-loop", func(ctx context.Context) {
		reconciler.Loop(ctx, cfg.Reconcile.Interval)
	})
	elector.AddTask("notification-retention", func(ctx context.Context) {
		notify.NewRetentionWorker(notes, cfg.Notifications.RetentionDays, logger).Run(ctx)
	})
	go elector.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()
	srv.SetReady(true)
	logger.Info("boarddocs server ready", "listen", cfg.Listen)

	<-ctx.Done()

	logger.Info("shutting down...")
	srv.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	closeDB(db, logger)

	logger.Info("boarddocs server stopped")
}

// newElector gates the singleton background tasks. Without leader election
// every replica runs them.
func newElector(cfg *ha.HAConfig, logger *slog.Logger) *ha.LeaderElector {
	var client kubernetes.Interface
	if cfg.LeaderElectionEnabled {
		c, err := ha.NewKubernetesClient(cfg.Kubeconfig)
		if err != nil {
			glog.Fatalf("Failed to create Kubernetes client for leader election: %v", err)
		}
		client = c
		logger.Info("leader election enabled",
			"lease", cfg.LeaseName,
			"namespace", cfg.LeaseNamespace,
			"identity", cfg.Identity)
	}
	return ha.NewLeaderElector(cfg, client, cfg.Identity, logger)
}

func closeDB(db *gorm.DB, logger *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
}
