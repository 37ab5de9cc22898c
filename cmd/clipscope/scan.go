package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clipscope/internal/chain"
	"clipscope/internal/coin"
	"clipscope/internal/config"
	"clipscope/internal/indexer"
	"clipscope/internal/metadata"
	"clipscope/internal/storage"
	"clipscope/internal/storage/postgres"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	req, err := buildScanRequest(cfg)
	if err != nil {
		return err
	}
	pipeline := newPipeline(cfg, chainClient, nil, logger)

	logStart(ctx, logger, chainClient, cfg, "scan start")

	records, err := pipeline.Scan(ctx, req)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	feed := storage.FeedName(req.Identity)
	sinks := []storage.Storage{storage.NewJsonlStorage(cfg.Out)}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	for _, sink := range sinks {
		if err := sink.PutCatalog(ctx, feed, records); err != nil {
			return fmt.Errorf("publish catalog: %w", err)
		}
	}

	logger.Info("scan published",
		zap.String("feed", feed),
		zap.Int("records", len(records)),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)
	return nil
}

// buildScanRequest turns configuration into the scan parameters shared by the
// scan and serve commands.
func buildScanRequest(cfg config.Config) (indexer.ScanRequest, error) {
	contract, err := indexer.ParseAddress(cfg.Contract)
	if err != nil {
		return indexer.ScanRequest{}, fmt.Errorf("contract: %w", err)
	}
	event, err := coin.ParseEventSignature(cfg.Event)
	if err != nil {
		return indexer.ScanRequest{}, fmt.Errorf("event: %w", err)
	}
	if _, err := coin.NewDecoder(event, nil); err != nil {
		return indexer.ScanRequest{}, fmt.Errorf("event: %w", err)
	}
	identity, err := indexer.ParseIdentity(cfg.Identity)
	if err != nil {
		return indexer.ScanRequest{}, fmt.Errorf("identity: %w", err)
	}

	req := indexer.ScanRequest{
		Contract:  contract,
		Event:     event,
		Lookback:  cfg.Lookback,
		BatchSize: cfg.BatchSize,
		Identity:  identity,
		Dedupe:    cfg.Dedupe,
	}
	if cfg.ToBlock > 0 {
		req.Range = &indexer.BlockRange{From: cfg.FromBlock, To: cfg.ToBlock}
	}
	return req, nil
}

func newPipeline(cfg config.Config, chainClient indexer.ChainReader, cache *metadata.Cache, logger *zap.Logger) *indexer.Pipeline {
	resolver := metadata.NewHTTPResolver(metadata.ResolverConfig{
		Gateway:  cfg.IPFSGateway,
		Timeout:  cfg.MetadataTimeout,
		MaxBytes: cfg.MetadataMaxBytes,
	}, nil, logger)

	return indexer.NewPipeline(indexer.PipelineConfig{
		ThrottleInterval: cfg.Throttle,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
	}, chainClient, resolver, cache, logger)
}

func logStart(ctx context.Context, logger *zap.Logger, chainClient *chain.Client, cfg config.Config, msg string) {
	fields := []zap.Field{
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", cfg.Contract),
		zap.Uint64("lookback", cfg.Lookback),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Duration("throttle", cfg.Throttle),
		zap.String("identity", cfg.Identity),
		zap.Bool("dedupe", cfg.Dedupe),
	}
	if chainID, err := chainClient.GetChainID(ctx); err != nil {
		logger.Warn("chain id lookup failed", zap.Error(err))
	} else {
		fields = append(fields, zap.String("chain_id", chainID.String()))
	}
	logger.Info(msg, fields...)
}
