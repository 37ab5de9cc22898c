package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"clipscope/internal/chain"
	"clipscope/internal/coin"
	"clipscope/internal/indexer"
	"clipscope/internal/metadata"
)

// Config holds scan configuration loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	RPCTimeout       time.Duration
	Contract         string
	Event            string
	Lookback         uint64
	FromBlock        uint64
	ToBlock          uint64
	BatchSize        uint64
	Throttle         time.Duration
	Identity         string
	IPFSGateway      string
	MetadataTimeout  time.Duration
	MetadataMaxBytes int64
	MaxRetries       int
	RetryBackoff     time.Duration
	Dedupe           bool
	Out              string
	PGDSN            string
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v), nil
}

// Validate checks values the pipeline cannot run without.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Contract == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.FromBlock > 0 && c.ToBlock == 0 {
		return fmt.Errorf("from block requires to block")
	}
	if c.Throttle < 0 {
		return fmt.Errorf("throttle must not be negative")
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("CLIPSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc-timeout", chain.DefaultCallTimeout)
	v.SetDefault("contract", coin.DefaultFactoryAddress)
	v.SetDefault("event", coin.DefaultEventSignature)
	v.SetDefault("lookback", indexer.DefaultLookback)
	v.SetDefault("batch-size", indexer.DefaultBatchSize)
	v.SetDefault("throttle", metadata.DefaultThrottleInterval)
	v.SetDefault("ipfs-gateway", metadata.DefaultGateway)
	v.SetDefault("metadata-timeout", metadata.DefaultTimeout)
	v.SetDefault("metadata-max-bytes", int64(metadata.DefaultMaxBytes))
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("out", "./data/catalog.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("listen", ":8080")
	v.SetDefault("cache-size", 1024)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		RPCURL:           v.GetString("rpc"),
		RPCTimeout:       v.GetDuration("rpc-timeout"),
		Contract:         strings.TrimSpace(v.GetString("contract")),
		Event:            strings.TrimSpace(v.GetString("event")),
		Lookback:         v.GetUint64("lookback"),
		FromBlock:        v.GetUint64("from"),
		ToBlock:          v.GetUint64("to"),
		BatchSize:        v.GetUint64("batch-size"),
		Throttle:         v.GetDuration("throttle"),
		Identity:         strings.TrimSpace(v.GetString("identity")),
		IPFSGateway:      v.GetString("ipfs-gateway"),
		MetadataTimeout:  v.GetDuration("metadata-timeout"),
		MetadataMaxBytes: v.GetInt64("metadata-max-bytes"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Dedupe:           v.GetBool("dedupe"),
		Out:              v.GetString("out"),
		PGDSN:            v.GetString("pg-dsn"),
		LogLevel:         v.GetString("log-level"),
	}
}
