// Package serverrun starts the messaging server and blocks until shutdown.
package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/config"
	"github.com/Austin-rgb/messages/internal/runtime"
	httpserver "github.com/Austin-rgb/messages/internal/server/http"
)

// Options carries the CLI flag overrides layered on top of the loaded
// configuration. Empty/zero fields leave the config value untouched.
type Options struct {
	ConfigPath string
	DataDir    string
	HTTPAddr   string
	Fsync      string
	LogLevel   string
}

func (o Options) apply(cfg *config.Config) {
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.HTTPAddr != "" {
		cfg.HTTP.Addr = o.HTTPAddr
	}
	if o.Fsync != "" {
		cfg.Log.Fsync = o.Fsync
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

// Run loads configuration, opens the runtime, serves HTTP, and blocks until
// the context is cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := runtime.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.StartWorkers(sctx)

	srv := httpserver.NewServer(rt, cfg, logger.Named("http"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	<-sctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}
