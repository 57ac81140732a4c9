package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/appcore"
	"viral-clipper/internal/handler"
	"viral-clipper/internal/queue"
	"viral-clipper/internal/router"
	"viral-clipper/internal/service"
	"viral-clipper/internal/taskrunner"
	"viral-clipper/log"
)

const shutdownTimeout = 15 * time.Second

// StartBackend serves the HTTP API until ctx is done, then shuts down
// gracefully. Jobs still running are canceled.
func StartBackend(ctx context.Context) error {
	analyzer, err := service.NewAnalyzer()
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}
	hub := appcore.NewEventHub(32).RetainFinished(config.Conf.Server.RetainFinished)

	var (
		runner *taskrunner.Runner
		q      *queue.Queue
	)
	if config.Conf.Queue.Enabled {
		q = queue.NewQueue(queue.ConfigFromApp(config.Conf))
		if err = queue.StartWorker(q, analyzer, hub); err != nil {
			return fmt.Errorf("start queue worker: %w", err)
		}
		defer func() {
			if err := q.Close(); err != nil {
				log.GetLogger().Warn("queue close failed", zap.Error(err))
			}
		}()
	} else {
		runner = taskrunner.New(analyzer, hub, taskrunner.Config{Concurrency: config.Conf.Queue.Concurrency})
		defer runner.Close()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	router.SetupRouter(engine, handler.NewHandler(analyzer, runner, q, hub))

	addr := fmt.Sprintf("%s:%d", config.Conf.Server.Host, config.Conf.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.GetLogger().Info("server listening", zap.String("addr", addr), zap.Bool("queue", q != nil))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.GetLogger().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.GetLogger().Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
