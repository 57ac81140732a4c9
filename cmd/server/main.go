package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/deps"
	"viral-clipper/internal/server"
	"viral-clipper/internal/storage"
	"viral-clipper/log"
)

func main() {
	log.InitLogger()
	defer log.GetLogger().Sync()

	config.LoadEnv()
	if created, err := config.LoadOrCreateConfig(); err != nil {
		log.GetLogger().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	} else if created {
		log.GetLogger().Info("wrote default config, edit it and restart")
	}

	if err := config.CheckConfig(); err != nil {
		log.GetLogger().Error("invalid config", zap.Error(err))
		os.Exit(1)
	}

	if err := storage.InitDB(); err != nil {
		log.GetLogger().Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}

	// Jobs left running by a previous process will never finish
	if count, err := storage.MarkStaleJobs(); err != nil {
		log.GetLogger().Warn("failed to mark stale jobs", zap.Error(err))
	} else if count > 0 {
		log.GetLogger().Info("marked stale jobs as failed", zap.Int64("count", count))
	}
	if config.Conf.Storage.CacheEnabled && config.Conf.Storage.CacheTTLHours > 0 {
		ttl := time.Duration(config.Conf.Storage.CacheTTLHours) * time.Hour
		if purged, err := storage.PurgeExpiredCache(ttl); err != nil {
			log.GetLogger().Warn("failed to purge result cache", zap.Error(err))
		} else if purged > 0 {
			log.GetLogger().Info("purged expired cache entries", zap.Int64("count", purged))
		}
	}

	if err := deps.CheckDependency(); err != nil {
		log.GetLogger().Error("dependency check failed", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.StartBackend(ctx); err != nil {
		log.GetLogger().Error("backend stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
