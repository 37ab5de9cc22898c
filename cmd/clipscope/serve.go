package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clipscope/internal/chain"
	"clipscope/internal/config"
	"clipscope/internal/metadata"
	"clipscope/internal/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RPCTimeout)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	base, err := buildScanRequest(cfg.Config)
	if err != nil {
		return err
	}

	var cache *metadata.Cache
	if cfg.CacheSize > 0 {
		cache, err = metadata.NewCache(cfg.CacheSize)
		if err != nil {
			return err
		}
	}
	pipeline := newPipeline(cfg.Config, chainClient, cache, logger)

	api := server.New(server.Config{ScanTimeout: cfg.ScanTimeout}, pipeline, base, logger)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logStart(ctx, logger, chainClient, cfg.Config, "serve start")
	logger.Info("http listening",
		zap.String("listen", cfg.Listen),
		zap.Int("cache_size", cfg.CacheSize),
		zap.Duration("scan_timeout", cfg.ScanTimeout),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
