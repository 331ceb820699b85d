package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qianlnk/werewolf-companion/api"
	"github.com/qianlnk/werewolf-companion/services"
	"github.com/qianlnk/werewolf-companion/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, cfg *Config) error {
	logger, err := newLogger(cfg.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.Open(ctx, cfg.storageOptions())
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("存储已就绪", zap.String("backend", cfg.storage))

	sessions := services.NewSessionManager(store, logger)

	stopSweeper, err := services.StartSweeper(sessions, cfg.sweepSchedule, cfg.sessionTimeout, logger)
	if err != nil {
		return err
	}
	defer stopSweeper()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           api.NewServer(sessions, logger, cfg.allowOrigins).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("服务器启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("服务器关闭中")
	return srv.Shutdown(shutdownCtx)
}
