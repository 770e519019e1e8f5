package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/demandplan/forecast-cache/internal/api"
	"github.com/demandplan/forecast-cache/internal/cache/hotcold"
	"github.com/demandplan/forecast-cache/internal/cache/pgstore"
	"github.com/demandplan/forecast-cache/internal/clientcache"
	"github.com/demandplan/forecast-cache/internal/core/config"
	"github.com/demandplan/forecast-cache/internal/core/observability"
	"github.com/demandplan/forecast-cache/internal/core/server"
	"github.com/demandplan/forecast-cache/internal/database"
	"github.com/demandplan/forecast-cache/internal/hybrid"
	"github.com/demandplan/forecast-cache/internal/invalidation"
	"github.com/demandplan/forecast-cache/internal/logger"
	"github.com/demandplan/forecast-cache/internal/source/pgsource"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address override")
	skipMigrate := flag.Bool("skip-migrate", false, "do not run schema migrations on startup")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "cacheserver",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting cacheserver",
		"addr", cfg.Addr,
		"version", Version,
		"cache_enabled", cfg.CacheEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*skipMigrate {
		if err := database.Migrate(cfg.MigrateURL()); err != nil {
			appLog.Error("migrations failed", "err", err)
			return 1
		}
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		appLog.Error("database connect failed", "err", err)
		return 1
	}
	defer pool.Close()

	store := pgstore.New(pool, appLog)
	if err := store.RecordMetadata(ctx, "service_started", "lifecycle", map[string]any{
		"version":      Version,
		"cacheEnabled": cfg.CacheEnabled,
	}); err != nil {
		appLog.Warn("startup metadata write failed", "err", err)
	}

	src := pgsource.New(pool)
	svc := hybrid.New(hybrid.Config{
		CacheEnabled: cfg.CacheEnabled,
		StatsWindow:  cfg.StatsWindow,
	}, store, src, appLog)

	views := clientcache.New(cfg.ClientCache.Size, cfg.ClientCache.TTL, appLog)
	go func() {
		warmed := views.PreloadCommonViews(ctx, func(ctx context.Context, v clientcache.View) ([]byte, error) {
			rows, err := svc.GetForecastSummary(ctx, v.Filters.FirstState(), "")
			if err != nil {
				return nil, err
			}
			return json.Marshal(rows)
		}, clientcache.CommonViews(hotcold.PopularStates()))
		appLog.Info("view cache preloaded", "views", warmed)
	}()

	if cfg.Invalidation.Enabled {
		consumer := invalidation.New(
			invalidation.DefaultConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID),
			store, appLog,
		)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	h := server.Handlers{
		Cache: api.NewCacheHandler(store, cfg.StatsWindow, appLog),
		Query: api.NewQueryHandler(svc, views, appLog),
		DB:    pool,
	}
	if err := server.Run(ctx, cfg, appLog, h); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
