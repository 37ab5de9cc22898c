package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipscope/internal/coin"
	"clipscope/internal/metadata"
	"clipscope/internal/model"
)

var (
	factory  = common.HexToAddress(coin.DefaultFactoryAddress)
	creatorA = common.HexToAddress("0x000000000000000000000000000000000000abc0")
	creatorB = common.HexToAddress("0x000000000000000000000000000000000000def0")
)

type fakeChain struct {
	mu        sync.Mutex
	latest    uint64
	latestErr error
	logs      []types.Log
	failFrom  map[uint64]error
	queries   []BlockRange
}

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	if c.latestErr != nil {
		return 0, c.latestErr
	}
	return c.latest, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, BlockRange{From: fromBlock, To: toBlock})
	if err := c.failFrom[fromBlock]; err != nil {
		return nil, err
	}

	out := make([]types.Log, 0)
	for _, log := range c.logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		if !containsAddress(addresses, log.Address) {
			continue
		}
		if len(topic0) > 0 && (len(log.Topics) == 0 || !containsHash(topic0, log.Topics[0])) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

type fakeResolver struct {
	mu    sync.Mutex
	docs  map[string]model.ResolvedMetadata
	calls []string
	times []time.Time
}

func (r *fakeResolver) Resolve(_ context.Context, uri string) (model.ResolvedMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, uri)
	r.times = append(r.times, time.Now())
	meta, ok := r.docs[uri]
	return meta, ok
}

func videoMeta(name string) model.ResolvedMetadata {
	return model.ResolvedMetadata{ImageURI: "ipfs://" + name + ".png", AnimationURI: "ipfs://" + name + ".mp4"}
}

func defaultEvent(t *testing.T) abi.Event {
	t.Helper()
	event, err := coin.DefaultEvent()
	require.NoError(t, err)
	return event
}

func creationLog(t *testing.T, block uint64, index uint, coinAddr, creator common.Address, uri string) types.Log {
	t.Helper()
	event := defaultEvent(t)
	data, err := event.Inputs.NonIndexed().Pack("Clip", "CLIP", uri, big.NewInt(1), big.NewInt(2))
	require.NoError(t, err)
	return types.Log{
		Address: factory,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(coinAddr.Bytes()),
			common.BytesToHash(creator.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		Index:       index,
	}
}

func coinAddress(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + n)))
}

func newTestPipeline(chain ChainReader, resolver metadata.Resolver) *Pipeline {
	return NewPipeline(PipelineConfig{
		ThrottleInterval: 0,
		MaxRetries:       0,
		RetryBackoff:     time.Millisecond,
	}, chain, resolver, nil, nil)
}

func baseRequest(t *testing.T) ScanRequest {
	return ScanRequest{
		Contract:  factory,
		Event:     defaultEvent(t),
		Lookback:  DefaultLookback,
		BatchSize: DefaultBatchSize,
	}
}

func coinsOf(records []model.DisplayRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Event.CoinAddress)
	}
	return out
}

func TestScanBatchesLookbackWindow(t *testing.T) {
	chain := &fakeChain{latest: 1200}
	p := newTestPipeline(chain, &fakeResolver{})

	req := baseRequest(t)
	req.Lookback = 100_000
	records, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, []BlockRange{{0, 499}, {500, 999}, {1000, 1200}}, chain.queries)
}

func TestScanLookbackFromHead(t *testing.T) {
	chain := &fakeChain{latest: 250_000}
	p := newTestPipeline(chain, &fakeResolver{})

	req := baseRequest(t)
	req.BatchSize = 50_000
	_, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, chain.queries)
	assert.Equal(t, uint64(150_000), chain.queries[0].From)
	assert.Equal(t, uint64(250_000), chain.queries[len(chain.queries)-1].To)
}

func TestScanIncludesVideoAsset(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://meta1"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://meta1": {ImageURI: "ipfs://a", AnimationURI: "ipfs://b.mp4"},
	}}
	p := newTestPipeline(chain, resolver)

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, coinAddress(1).Hex(), record.Event.CoinAddress)
	assert.Equal(t, creatorA.Hex(), record.Event.CreatorAddress)
	assert.Equal(t, "ipfs://meta1", record.Event.MetadataURI)
	assert.Equal(t, "ipfs://b.mp4", record.Metadata.AnimationURI)
	assert.Equal(t, uint64(10), record.Position.BlockNumber)
}

func TestScanExcludesNonVideoAsset(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://meta1"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://meta1": {ImageURI: "ipfs://a", AnimationURI: "ipfs://b.mov.txt"},
	}}
	p := newTestPipeline(chain, resolver)

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanIdentityCaseInsensitive(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://meta1"),
		creationLog(t, 11, 0, coinAddress(2), creatorB, "ipfs://meta2"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://meta1": videoMeta("one"),
		"ipfs://meta2": videoMeta("two"),
	}}
	p := newTestPipeline(chain, resolver)

	req := baseRequest(t)
	req.Identity = "0x000000000000000000000000000000000000ABC0"
	records, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{coinAddress(1).Hex()}, coinsOf(records))
	assert.Equal(t, []string{"ipfs://meta1"}, resolver.calls, "non-matching creators must not be resolved")
}

func TestScanIdentityWithoutPrefix(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://meta1"),
		creationLog(t, 11, 0, coinAddress(2), creatorB, "ipfs://meta2"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://meta1": videoMeta("one"),
		"ipfs://meta2": videoMeta("two"),
	}}
	p := newTestPipeline(chain, resolver)

	req := baseRequest(t)
	req.Identity = "000000000000000000000000000000000000ABC0"
	records, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{coinAddress(1).Hex()}, coinsOf(records))
}

func TestScanMetadataFailureIsLocal(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://meta1"),
		creationLog(t, 20, 0, coinAddress(2), creatorA, "ipfs://unreachable"),
		creationLog(t, 30, 0, coinAddress(3), creatorA, "ipfs://meta3"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://meta1": videoMeta("one"),
		"ipfs://meta3": videoMeta("three"),
	}}
	p := newTestPipeline(chain, resolver)

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, []string{coinAddress(1).Hex(), coinAddress(3).Hex()}, coinsOf(records))
}

func TestScanPreservesChainOrder(t *testing.T) {
	// Logs span several batches and arrive out of order within a batch.
	chain := &fakeChain{latest: 2000, logs: []types.Log{
		creationLog(t, 1500, 2, coinAddress(5), creatorA, "ipfs://m5"),
		creationLog(t, 1500, 1, coinAddress(4), creatorA, "ipfs://m4"),
		creationLog(t, 20, 0, coinAddress(1), creatorA, "ipfs://m1"),
		creationLog(t, 600, 7, coinAddress(3), creatorA, "ipfs://m3"),
		creationLog(t, 600, 3, coinAddress(2), creatorA, "ipfs://m2"),
	}}
	docs := map[string]model.ResolvedMetadata{}
	for i := 1; i <= 5; i++ {
		docs[fmt.Sprintf("ipfs://m%d", i)] = videoMeta(fmt.Sprint(i))
	}
	p := newTestPipeline(chain, &fakeResolver{docs: docs})

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)

	want := []string{
		coinAddress(1).Hex(),
		coinAddress(2).Hex(),
		coinAddress(3).Hex(),
		coinAddress(4).Hex(),
		coinAddress(5).Hex(),
	}
	assert.Equal(t, want, coinsOf(records))
}

func TestScanIdempotent(t *testing.T) {
	chain := &fakeChain{latest: 1000, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
		creationLog(t, 700, 0, coinAddress(2), creatorB, "ipfs://m2"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://m1": videoMeta("1"),
		"ipfs://m2": videoMeta("2"),
	}}
	p := newTestPipeline(chain, resolver)

	first, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	second, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestScanSkipsMalformedRemovedAndDuplicateLogs(t *testing.T) {
	good := creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1")
	removed := creationLog(t, 11, 0, coinAddress(2), creatorA, "ipfs://m2")
	removed.Removed = true
	malformed := creationLog(t, 12, 0, coinAddress(3), creatorA, "ipfs://m3")
	malformed.Data = []byte{0x01}
	emptyURI := creationLog(t, 13, 0, coinAddress(4), creatorA, "")

	chain := &fakeChain{latest: 100, logs: []types.Log{good, good, removed, malformed, emptyURI}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://m1": videoMeta("1"),
		"ipfs://m2": videoMeta("2"),
		"ipfs://m3": videoMeta("3"),
	}}
	p := newTestPipeline(chain, resolver)

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, []string{coinAddress(1).Hex()}, coinsOf(records))
	assert.Equal(t, []string{"ipfs://m1"}, resolver.calls)
}

func TestScanDuplicateCoins(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
		creationLog(t, 20, 0, coinAddress(2), creatorA, "ipfs://m2"),
		creationLog(t, 30, 0, coinAddress(1), creatorA, "ipfs://m1b"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://m1":  videoMeta("1"),
		"ipfs://m2":  videoMeta("2"),
		"ipfs://m1b": videoMeta("1b"),
	}}
	p := newTestPipeline(chain, resolver)

	req := baseRequest(t)
	records, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{coinAddress(1).Hex(), coinAddress(2).Hex(), coinAddress(1).Hex()}, coinsOf(records))

	req.Dedupe = true
	records, err = p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{coinAddress(2).Hex(), coinAddress(1).Hex()}, coinsOf(records))
	assert.Equal(t, "ipfs://m1b", records[1].Event.MetadataURI)
}

func TestScanLatestBlockFailure(t *testing.T) {
	chain := &fakeChain{latestErr: errors.New("rpc down")}
	p := newTestPipeline(chain, &fakeResolver{})

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.Error(t, err)
	assert.Nil(t, records)

	var chainErr *ChainQueryError
	require.True(t, errors.As(err, &chainErr))
	assert.Equal(t, "latest block", chainErr.Op)
	assert.Empty(t, chain.queries)
}

func TestScanBatchFailureIsFatal(t *testing.T) {
	chain := &fakeChain{
		latest: 1200,
		logs: []types.Log{
			creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
		},
		failFrom: map[uint64]error{500: errors.New("query returned more than 10000 results")},
	}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{"ipfs://m1": videoMeta("1")}}
	p := newTestPipeline(chain, resolver)

	records, err := p.Scan(context.Background(), baseRequest(t))
	require.Error(t, err)
	assert.Nil(t, records)
	assert.Empty(t, resolver.calls, "no metadata is resolved before all batches succeed")

	var chainErr *ChainQueryError
	require.True(t, errors.As(err, &chainErr))
	require.NotNil(t, chainErr.Range)
	assert.Equal(t, BlockRange{From: 500, To: 999}, *chainErr.Range)
	assert.Len(t, chain.queries, 2, "batches after the failure are not fetched")
}

func TestScanRetriesBatch(t *testing.T) {
	chain := &flakyChain{fakeChain: fakeChain{latest: 100}, failures: 2}
	p := NewPipeline(PipelineConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, chain, &fakeResolver{}, nil, nil)

	_, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 3, chain.attempts)
}

func TestScanRetriesBatchAfterCallTimeout(t *testing.T) {
	chain := &flakyChain{
		fakeChain: fakeChain{latest: 100},
		failures:  1,
		err:       fmt.Errorf("eth_getLogs [0, 100]: %w", context.DeadlineExceeded),
	}
	p := NewPipeline(PipelineConfig{MaxRetries: 3, RetryBackoff: time.Millisecond}, chain, &fakeResolver{}, nil, nil)

	_, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 2, chain.attempts)
}

type flakyChain struct {
	fakeChain
	failures int
	attempts int
	err      error
}

func (c *flakyChain) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	c.attempts++
	if c.attempts <= c.failures {
		if c.err != nil {
			return nil, c.err
		}
		return nil, errors.New("timeout")
	}
	return c.fakeChain.FilterLogs(ctx, fromBlock, toBlock, addresses, topic0)
}

func TestScanExplicitRange(t *testing.T) {
	chain := &fakeChain{latestErr: errors.New("must not be called")}
	p := newTestPipeline(chain, &fakeResolver{})

	req := baseRequest(t)
	req.Range = &BlockRange{From: 0, To: 1200}
	_, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{0, 499}, {500, 999}, {1000, 1200}}, chain.queries)

	chain.queries = nil
	req.Range = &BlockRange{From: 10, To: 9}
	records, err := p.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, chain.queries)
}

func TestScanCancelled(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
	}}
	p := newTestPipeline(chain, &fakeResolver{docs: map[string]model.ResolvedMetadata{"ipfs://m1": videoMeta("1")}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records, err := p.Scan(ctx, baseRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, records)
}

func TestScanCancelledDuringResolution(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
		creationLog(t, 11, 0, coinAddress(2), creatorA, "ipfs://m2"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{
		"ipfs://m1": videoMeta("1"),
		"ipfs://m2": videoMeta("2"),
	}}
	p := NewPipeline(PipelineConfig{ThrottleInterval: time.Hour}, chain, resolver, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	records, err := p.Scan(ctx, baseRequest(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, records)
	assert.Equal(t, []string{"ipfs://m1"}, resolver.calls)
}

func TestScanThrottlesResolution(t *testing.T) {
	const interval = 40 * time.Millisecond
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
		creationLog(t, 11, 0, coinAddress(2), creatorA, "ipfs://m2"),
		creationLog(t, 12, 0, coinAddress(3), creatorA, "ipfs://m3"),
	}}
	resolver := &fakeResolver{}
	p := NewPipeline(PipelineConfig{ThrottleInterval: interval}, chain, resolver, nil, nil)

	_, err := p.Scan(context.Background(), baseRequest(t))
	require.NoError(t, err)
	require.Len(t, resolver.times, 3)
	for i := 1; i < len(resolver.times); i++ {
		assert.GreaterOrEqual(t, resolver.times[i].Sub(resolver.times[i-1]), interval-5*time.Millisecond)
	}
}

func TestScanUsesCache(t *testing.T) {
	chain := &fakeChain{latest: 100, logs: []types.Log{
		creationLog(t, 10, 0, coinAddress(1), creatorA, "ipfs://m1"),
	}}
	resolver := &fakeResolver{docs: map[string]model.ResolvedMetadata{"ipfs://m1": videoMeta("1")}}
	cache, err := metadata.NewCache(8)
	require.NoError(t, err)
	p := NewPipeline(PipelineConfig{}, chain, resolver, cache, nil)

	for i := 0; i < 3; i++ {
		records, err := p.Scan(context.Background(), baseRequest(t))
		require.NoError(t, err)
		require.Len(t, records, 1)
	}
	assert.Equal(t, []string{"ipfs://m1"}, resolver.calls)
}

func TestScanInvalidRequest(t *testing.T) {
	p := newTestPipeline(&fakeChain{latest: 10}, &fakeResolver{})

	req := baseRequest(t)
	req.BatchSize = 0
	_, err := p.Scan(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest(t)
	req.Contract = common.Address{}
	_, err = p.Scan(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest(t)
	req.Event, err = coin.ParseEventSignature("Transfer(address indexed from, address indexed to, uint256 value)")
	require.NoError(t, err)
	_, err = p.Scan(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest(t)
	req.Identity = "creator"
	_, err = p.Scan(context.Background(), req)
	assert.Error(t, err)
}
