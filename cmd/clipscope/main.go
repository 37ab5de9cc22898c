package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clipscope/internal/chain"
	"clipscope/internal/coin"
	"clipscope/internal/indexer"
	"clipscope/internal/metadata"
)

func main() {
	root := &cobra.Command{
		Use:          "clipscope",
		Short:        "Video coin catalog builder",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan recent coin creations and write the video catalog",
		RunE:  runScan,
	}

	addScanFlags(scanCmd.Flags())
	scanCmd.Flags().String("out", "./data/catalog.jsonl", "output JSONL path (- for stdout)")
	scanCmd.Flags().String("pg-dsn", "", "Postgres DSN for publishing the catalog snapshot")

	root.AddCommand(scanCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve catalog feeds over HTTP",
		RunE:  runServe,
	}

	addScanFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Int("cache-size", 1024, "metadata cache entries (0 disables)")
	serveCmd.Flags().Duration("scan-timeout", 0, "per-request scan timeout, 0 means none")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScanFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "chain RPC URL")
	flags.Duration("rpc-timeout", chain.DefaultCallTimeout, "timeout for a single RPC call")
	flags.String("contract", coin.DefaultFactoryAddress, "coin factory contract address")
	flags.String("event", coin.DefaultEventSignature, "coin creation event signature")
	flags.Uint64("lookback", indexer.DefaultLookback, "blocks to scan back from the chain head")
	flags.Uint64("from", 0, "start block (inclusive), requires --to")
	flags.Uint64("to", 0, "end block (inclusive), 0 means latest")
	flags.Uint64("batch-size", indexer.DefaultBatchSize, "blocks per log query")
	flags.Duration("throttle", metadata.DefaultThrottleInterval, "minimum interval between metadata fetches")
	flags.String("identity", "", "only include coins created by this address")
	flags.String("ipfs-gateway", metadata.DefaultGateway, "gateway prefix for ipfs:// URIs")
	flags.Duration("metadata-timeout", metadata.DefaultTimeout, "metadata fetch timeout")
	flags.Int64("metadata-max-bytes", metadata.DefaultMaxBytes, "maximum metadata document size")
	flags.Int("max-retries", 3, "maximum retry attempts for chain queries")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Bool("dedupe", false, "keep only the latest record per coin address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
