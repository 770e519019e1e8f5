// Command cachesweep runs one expiry sweep and exits. It is meant to be
// invoked by an external scheduler (cron, CI, an operator).
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/demandplan/forecast-cache/internal/cache/pgstore"
	"github.com/demandplan/forecast-cache/internal/core/config"
	"github.com/demandplan/forecast-cache/internal/database"
	"github.com/demandplan/forecast-cache/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall sweep deadline")
	flag.Parse()

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "cachesweep",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		appLog.Error("database connect failed", "err", err)
		return 1
	}
	defer pool.Close()

	store := pgstore.New(pool, appLog)

	start := time.Now()
	removed, err := store.ClearExpired(ctx)
	if err != nil {
		appLog.Error("expiry sweep failed", "err", err)
		return 1
	}
	elapsed := time.Since(start)
	appLog.Info("expiry sweep complete", "removed", removed, "duration_ms", elapsed.Milliseconds())

	if err := store.RecordMetadata(ctx, "expiry_sweep", "maintenance", map[string]any{
		"removed":    removed,
		"durationMs": elapsed.Milliseconds(),
		"sweptAt":    start.UTC().Format(time.RFC3339),
	}); err != nil {
		appLog.Warn("sweep metadata write failed", "err", err)
	}
	return 0
}
