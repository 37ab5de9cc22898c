package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the HTTP API.
type ServeConfig struct {
	Config
	Listen      string
	CacheSize   int
	ScanTimeout time.Duration
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		Config:      fromViper(v),
		Listen:      v.GetString("listen"),
		CacheSize:   v.GetInt("cache-size"),
		ScanTimeout: v.GetDuration("scan-timeout"),
	}, nil
}

// Validate checks the scan settings and the listener.
func (c ServeConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	return nil
}
