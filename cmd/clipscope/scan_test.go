package main

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"clipscope/internal/coin"
	"clipscope/internal/config"
	"clipscope/internal/indexer"
)

func baseConfig() config.Config {
	return config.Config{
		RPCURL:    "http://localhost:8545",
		Contract:  coin.DefaultFactoryAddress,
		Event:     coin.DefaultEventSignature,
		Lookback:  indexer.DefaultLookback,
		BatchSize: indexer.DefaultBatchSize,
	}
}

func TestBuildScanRequestDefaults(t *testing.T) {
	req, err := buildScanRequest(baseConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Range != nil {
		t.Fatalf("expected lookback scan, got range %+v", *req.Range)
	}
	if req.Event.Name != "CoinCreated" {
		t.Fatalf("unexpected event %q", req.Event.Name)
	}
	if !strings.EqualFold(req.Contract.Hex(), coin.DefaultFactoryAddress) {
		t.Fatalf("unexpected contract %s", req.Contract.Hex())
	}
	if req.Identity != "" {
		t.Fatalf("expected no identity, got %q", req.Identity)
	}
}

func TestBuildScanRequestExplicitRange(t *testing.T) {
	cfg := baseConfig()
	cfg.FromBlock = 100
	cfg.ToBlock = 200
	cfg.Identity = " 0x000000000000000000000000000000000000abc0 "
	cfg.Dedupe = true

	req, err := buildScanRequest(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Range == nil || req.Range.From != 100 || req.Range.To != 200 {
		t.Fatalf("unexpected range %+v", req.Range)
	}
	if req.Identity != common.HexToAddress("0x000000000000000000000000000000000000abc0").Hex() {
		t.Fatalf("unexpected identity %q", req.Identity)
	}
	if !req.Dedupe {
		t.Fatalf("expected dedupe")
	}
}

func TestBuildScanRequestRejectsBadInput(t *testing.T) {
	cases := map[string]func(*config.Config){
		"contract": func(c *config.Config) { c.Contract = "0x1234" },
		"event":    func(c *config.Config) { c.Event = "Transfer(address indexed from, address indexed to, uint256 value)" },
		"identity": func(c *config.Config) { c.Identity = "creator" },
	}
	for name, mutate := range cases {
		cfg := baseConfig()
		mutate(&cfg)
		if _, err := buildScanRequest(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected error")
	}
	logger, err := newLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Sync()
}
