// Package config loads the ammd daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr  = "127.0.0.1:8545"
	DefaultMetricsAddr = "127.0.0.1:9090"
	DefaultBufferSize  = 128
)

type TokenConfig struct {
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
	// Supply is minted to Holder at deployment, in base units.
	Supply *big.Int       `yaml:"supply"`
	Holder common.Address `yaml:"holder"`
}

// PairConfig names a pair to create at boot by token symbols. When Amounts is
// set, Provider seeds the pair with that much of each token.
type PairConfig struct {
	Tokens   [2]string      `yaml:"tokens"`
	Amounts  []*big.Int     `yaml:"amounts,omitempty"`
	Provider common.Address `yaml:"provider,omitempty"`
}

type Config struct {
	ChainID     *big.Int       `yaml:"chain_id"`
	GenesisTime uint64         `yaml:"genesis_time"`
	Deployer    common.Address `yaml:"deployer"`
	FeeToSetter common.Address `yaml:"fee_to_setter"`
	FeeTo       common.Address `yaml:"fee_to"`
	// FollowWallClock moves block time to the host clock every ClockInterval.
	FollowWallClock bool          `yaml:"follow_wall_clock"`
	ClockInterval   time.Duration `yaml:"clock_interval"`
	ListenAddr      string        `yaml:"listen_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	BufferSize      uint          `yaml:"buffer_size"`
	Tokens          []TokenConfig `yaml:"tokens"`
	Pairs           []PairConfig  `yaml:"pairs"`
}

// LoadConfig reads a configuration file from the given path, fills defaults
// and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.GenesisTime == 0 {
		c.GenesisTime = uint64(time.Now().Unix())
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ClockInterval == 0 {
		c.ClockInterval = time.Second
	}
	if c.FeeToSetter == (common.Address{}) {
		c.FeeToSetter = c.Deployer
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		errs = append(errs, errors.New("chain_id must be positive"))
	}
	if c.Deployer == (common.Address{}) {
		errs = append(errs, errors.New("deployer is required"))
	}
	if c.ClockInterval < 0 {
		errs = append(errs, errors.New("clock_interval cannot be negative"))
	}

	symbols := make(map[string]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.Symbol == "" {
			errs = append(errs, fmt.Errorf("tokens[%d]: symbol is required", i))
			continue
		}
		if symbols[t.Symbol] {
			errs = append(errs, fmt.Errorf("tokens[%d]: duplicate symbol %q", i, t.Symbol))
		}
		symbols[t.Symbol] = true
		if t.Supply == nil || t.Supply.Sign() < 0 {
			errs = append(errs, fmt.Errorf("tokens[%d]: supply must be non-negative", i))
		}
		if t.Supply != nil && t.Supply.BitLen() > 256 {
			errs = append(errs, fmt.Errorf("tokens[%d]: supply exceeds 256 bits", i))
		}
		if t.Holder == (common.Address{}) {
			errs = append(errs, fmt.Errorf("tokens[%d]: holder is required", i))
		}
	}

	for i, p := range c.Pairs {
		for _, sym := range p.Tokens {
			if !symbols[sym] {
				errs = append(errs, fmt.Errorf("pairs[%d]: unknown token %q", i, sym))
			}
		}
		if p.Tokens[0] == p.Tokens[1] {
			errs = append(errs, fmt.Errorf("pairs[%d]: tokens must differ", i))
		}
		if len(p.Amounts) == 0 {
			continue
		}
		if len(p.Amounts) != 2 || p.Amounts[0] == nil || p.Amounts[1] == nil {
			errs = append(errs, fmt.Errorf("pairs[%d]: amounts needs exactly two values", i))
		}
		if p.Provider == (common.Address{}) {
			errs = append(errs, fmt.Errorf("pairs[%d]: provider is required with amounts", i))
		}
	}
	return errors.Join(errs...)
}

// Token returns the token configured with symbol.
func (c *Config) Token(symbol string) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TokenConfig{}, false
}
