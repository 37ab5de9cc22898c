package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"clipscope/internal/coin"
	"clipscope/internal/filter"
	"clipscope/internal/metadata"
	"clipscope/internal/metrics"
	"clipscope/internal/model"
)

const (
	DefaultLookback  uint64 = 100_000
	DefaultBatchSize uint64 = 500
)

// ChainReader is the chain RPC surface a scan reads from.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// PipelineConfig holds runtime settings shared by every scan.
type PipelineConfig struct {
	ThrottleInterval time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
}

// ScanRequest describes one scan.
type ScanRequest struct {
	Contract common.Address
	Event    abi.Event
	// Range is scanned as given when set; otherwise the last Lookback blocks
	// up to the chain head are scanned.
	Range     *BlockRange
	Lookback  uint64
	BatchSize uint64
	// Identity restricts results to one creator address; empty means everyone.
	Identity string
	// Dedupe collapses repeated coin addresses to their latest emission.
	Dedupe bool
}

// Pipeline turns coin creation logs into an ordered catalog of video records.
type Pipeline struct {
	cfg      PipelineConfig
	chain    ChainReader
	resolver metadata.Resolver
	cache    *metadata.Cache
	retry    retryPolicy
	logger   *zap.Logger
}

// NewPipeline builds a Pipeline. cache may be nil.
func NewPipeline(cfg PipelineConfig, chainReader ChainReader, resolver metadata.Resolver, cache *metadata.Cache, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		chain:    chainReader,
		resolver: resolver,
		cache:    cache,
		retry:    newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, logger),
		logger:   logger,
	}
}

type scanStats struct {
	logs     int
	decoded  int
	matched  int
	resolved int
	emitted  int
}

// Scan runs one scan. Records come back in chain order (block, then log
// index). A chain query failure returns a *ChainQueryError and no records;
// metadata failures only drop the affected record.
func (p *Pipeline) Scan(ctx context.Context, req ScanRequest) ([]model.DisplayRecord, error) {
	start := time.Now()
	records, err := p.scan(ctx, req)
	metrics.ObserveScan(err, time.Since(start), len(records))
	if err != nil {
		p.logger.Warn("scan failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	return records, nil
}

func (p *Pipeline) scan(ctx context.Context, req ScanRequest) ([]model.DisplayRecord, error) {
	if p.chain == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if p.resolver == nil {
		return nil, fmt.Errorf("metadata resolver is nil")
	}
	if req.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if req.Contract == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}
	identity, err := ParseIdentity(req.Identity)
	if err != nil {
		return nil, err
	}

	decoder, err := coin.NewDecoder(req.Event, p.logger)
	if err != nil {
		return nil, fmt.Errorf("event decoder: %w", err)
	}

	total, err := p.scanRange(ctx, req)
	if err != nil {
		return nil, err
	}

	p.logger.Info("scan start",
		zap.String("contract", req.Contract.Hex()),
		zap.String("event", req.Event.Sig),
		zap.Uint64("from", total.From),
		zap.Uint64("to", total.To),
		zap.Uint64("batch_size", req.BatchSize),
		zap.String("identity", identity),
	)

	logs, err := p.collectLogs(ctx, req.Contract, decoder.Topic0(), total, req.BatchSize)
	if err != nil {
		return nil, err
	}

	resolver := metadata.Throttled(p.resolver, metadata.NewThrottle(p.cfg.ThrottleInterval))
	if p.cache != nil {
		resolver = metadata.Cached(resolver, p.cache)
	}

	stats := scanStats{logs: len(logs)}
	records := make([]model.DisplayRecord, 0)
	for _, log := range logs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event, ok := decoder.Decode(log)
		if !ok {
			continue
		}
		stats.decoded++

		if !filter.MatchesIdentity(event, identity) {
			continue
		}
		stats.matched++

		meta, ok := resolver.Resolve(ctx, event.MetadataURI)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		stats.resolved++

		if !filter.IsVideoAsset(&meta) {
			p.logger.Debug("skip non-video asset",
				zap.String("coin", event.CoinAddress),
				zap.String("animation_url", meta.AnimationURI),
			)
			continue
		}

		records = append(records, buildDisplayRecord(log, event, meta))
	}

	if req.Dedupe {
		records = DedupeByCoin(records)
	}
	stats.emitted = len(records)

	p.logger.Info("scan complete",
		zap.Int("logs", stats.logs),
		zap.Int("decoded", stats.decoded),
		zap.Int("matched", stats.matched),
		zap.Int("resolved", stats.resolved),
		zap.Int("emitted", stats.emitted),
	)

	return records, nil
}

func (p *Pipeline) scanRange(ctx context.Context, req ScanRequest) (BlockRange, error) {
	if req.Range != nil {
		return *req.Range, nil
	}

	latest, err := p.latestBlockWithRetry(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return BlockRange{}, ctxErr
		}
		return BlockRange{}, &ChainQueryError{Op: "latest block", Err: err}
	}
	return LookbackWindow(latest, req.Lookback), nil
}

// collectLogs fetches every batch in order, one at a time.
func (p *Pipeline) collectLogs(ctx context.Context, contract common.Address, topic0 common.Hash, total BlockRange, batchSize uint64) ([]types.Log, error) {
	seen := make(map[string]struct{})
	all := make([]types.Log, 0)

	for blockRange := range Batches(total, batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := p.filterLogsWithRetry(ctx, contract, topic0, blockRange)
		metrics.ObserveLogBatch(err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r := blockRange
			return nil, &ChainQueryError{Op: "filter logs", Range: &r, Err: err}
		}

		sortLogs(logs)
		kept := 0
		for _, log := range logs {
			if log.Removed || isDuplicate(seen, log) {
				continue
			}
			all = append(all, log)
			kept++
		}

		p.logger.Debug("batch complete", zap.Int("logs", kept), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return all, nil
}

func (p *Pipeline) latestBlockWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := p.retry.do(ctx, "latest block", func(ctx context.Context) error {
		var err error
		latest, err = p.chain.LatestBlockNumber(ctx)
		return err
	})
	return latest, err
}

func (p *Pipeline) filterLogsWithRetry(ctx context.Context, contract common.Address, topic0 common.Hash, blockRange BlockRange) ([]types.Log, error) {
	var logs []types.Log
	err := p.retry.do(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = p.chain.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{contract}, []common.Hash{topic0})
		return err
	}, zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	return logs, err
}

func isDuplicate(seen map[string]struct{}, log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := seen[id]; ok {
		return true
	}
	seen[id] = struct{}{}
	return false
}
