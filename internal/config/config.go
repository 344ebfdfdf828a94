// Package config loads the counter backend configuration: built-in defaults,
// then an optional yaml file, then COUNTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"aetos-counter/go-backend/internal/clarity"
	"aetos-counter/go-backend/internal/platform/logging"
	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/internal/wallet"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultContractAddress = "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV"
	DefaultContractName    = "counter"
	DefaultRPCAddr         = "127.0.0.1:8787"

	minPollInterval = time.Second
)

// DefaultPaths are tried in order when no explicit path is given.
var DefaultPaths = []string{"configs/counter.yaml", "counter.yaml"}

type Config struct {
	Contract stacks.ContractRef `yaml:"contract"`
	Network  string             `yaml:"network" env:"COUNTER_NETWORK"`
	API      stacks.Config      `yaml:"api"`
	Reader   ReaderConfig       `yaml:"reader"`
	Wallet   WalletConfig       `yaml:"wallet"`
	RPC      RPCConfig          `yaml:"rpc"`
	Logging  logging.Config     `yaml:"logging"`
}

type ReaderConfig struct {
	PollInterval time.Duration `yaml:"pollInterval" env:"COUNTER_POLL_INTERVAL"`
}

type WalletConfig struct {
	AppName         string              `yaml:"appName" env:"COUNTER_APP_NAME"`
	AppIcon         string              `yaml:"appIcon" env:"COUNTER_APP_ICON"`
	Bridge          wallet.BridgeConfig `yaml:"bridge"`
	FallbackAddress string              `yaml:"fallbackAddress" env:"COUNTER_WALLET_FALLBACK_ADDRESS"`
	SessionFile     string              `yaml:"sessionFile" env:"COUNTER_WALLET_SESSION_FILE"`
	SessionSecret   string              `yaml:"sessionSecret" env:"COUNTER_WALLET_SESSION_SECRET"`
	Warmup          time.Duration       `yaml:"warmup" env:"COUNTER_WALLET_WARMUP"`
	LoadAttempts    uint                `yaml:"loadAttempts" env:"COUNTER_WALLET_LOAD_ATTEMPTS"`
	RefreshDelay    time.Duration       `yaml:"refreshDelay" env:"COUNTER_REFRESH_DELAY"`
}

type RPCConfig struct {
	Addr               string  `yaml:"addr" env:"COUNTER_RPC_ADDR"`
	Token              string  `yaml:"token" env:"COUNTER_RPC_TOKEN"`
	TokenFile          string  `yaml:"tokenFile" env:"COUNTER_RPC_TOKEN_FILE"`
	RequireToken       bool    `yaml:"requireToken" env:"COUNTER_REQUIRE_RPC_TOKEN"`
	AllowNullOrigin    bool    `yaml:"allowNullOrigin" env:"COUNTER_ALLOW_NULL_ORIGIN"`
	RateLimitEnabled   bool    `yaml:"rateLimitEnabled" env:"COUNTER_RPC_RATE_LIMIT_ENABLED"`
	RateLimitRPS       float64 `yaml:"rateLimitRPS" env:"COUNTER_RPC_RATE_LIMIT_RPS"`
	RateLimitBurst     int     `yaml:"rateLimitBurst" env:"COUNTER_RPC_RATE_LIMIT_BURST"`
	StreamMaxGlobal    int     `yaml:"streamMaxGlobal" env:"COUNTER_RPC_STREAM_MAX_GLOBAL"`
	StreamMaxPerClient int     `yaml:"streamMaxPerClient" env:"COUNTER_RPC_STREAM_MAX_PER_CLIENT"`
	// WalletPromptTimeout bounds connect and submit prompts, which outlive the HTTP request.
	WalletPromptTimeout time.Duration `yaml:"walletPromptTimeout" env:"COUNTER_RPC_WALLET_PROMPT_TIMEOUT"`
}

func Default() Config {
	return Config{
		Contract: stacks.ContractRef{Address: DefaultContractAddress, Name: DefaultContractName},
		API:      stacks.DefaultConfig(),
		Reader:   ReaderConfig{PollInterval: 30 * time.Second},
		Wallet: WalletConfig{
			AppName:      "Counter",
			Warmup:       100 * time.Millisecond,
			LoadAttempts: 3,
			RefreshDelay: 5 * time.Second,
		},
		RPC: RPCConfig{
			Addr:                DefaultRPCAddr,
			RateLimitEnabled:    true,
			RateLimitRPS:        30,
			RateLimitBurst:      60,
			StreamMaxGlobal:     128,
			StreamMaxPerClient:  8,
			WalletPromptTimeout: 5 * time.Minute,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load applies the first readable file of path (or DefaultPaths when empty)
// over the defaults, then environment overrides, then normalizes.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := DefaultPaths
	if strings.TrimSpace(path) != "" {
		candidates = []string{path}
	}
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", candidate, err)
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnvOverrides sets fields whose COUNTER_* variable is present.
func ApplyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Normalize trims strings, fills derived values and clamps invalid durations
// back to their defaults.
func (c *Config) Normalize() {
	def := Default()

	c.Contract.Address = strings.TrimSpace(c.Contract.Address)
	c.Contract.Name = strings.TrimSpace(c.Contract.Name)
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	if c.Network == "" {
		c.Network = string(c.Contract.NetworkOf())
	}

	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" || (c.API.BaseURL == stacks.DefaultMainnetAPI && c.Network == string(stacks.Testnet)) {
		c.API.BaseURL = stacks.DefaultAPIURL(stacks.Network(c.Network))
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = def.API.Timeout
	}
	if c.Reader.PollInterval < minPollInterval {
		c.Reader.PollInterval = def.Reader.PollInterval
	}
	if c.Wallet.RefreshDelay <= 0 {
		c.Wallet.RefreshDelay = def.Wallet.RefreshDelay
	}
	if c.Wallet.Warmup < 0 {
		c.Wallet.Warmup = 0
	}
	if c.Wallet.LoadAttempts == 0 {
		c.Wallet.LoadAttempts = def.Wallet.LoadAttempts
	}
	c.Wallet.Bridge.URL = strings.TrimSpace(c.Wallet.Bridge.URL)
	c.Wallet.FallbackAddress = strings.TrimSpace(c.Wallet.FallbackAddress)
	c.Wallet.SessionFile = strings.TrimSpace(c.Wallet.SessionFile)
	c.Wallet.SessionSecret = strings.TrimSpace(c.Wallet.SessionSecret)

	c.RPC.Addr = strings.TrimSpace(c.RPC.Addr)
	if c.RPC.Addr == "" {
		c.RPC.Addr = def.RPC.Addr
	}
	c.RPC.Token = strings.TrimSpace(c.RPC.Token)
	c.RPC.TokenFile = strings.TrimSpace(c.RPC.TokenFile)
	if c.RPC.RateLimitRPS <= 0 {
		c.RPC.RateLimitRPS = def.RPC.RateLimitRPS
	}
	if c.RPC.RateLimitBurst <= 0 {
		c.RPC.RateLimitBurst = def.RPC.RateLimitBurst
	}
	if c.RPC.StreamMaxGlobal <= 0 {
		c.RPC.StreamMaxGlobal = def.RPC.StreamMaxGlobal
	}
	if c.RPC.StreamMaxPerClient <= 0 {
		c.RPC.StreamMaxPerClient = def.RPC.StreamMaxPerClient
	}
	if c.RPC.WalletPromptTimeout <= 0 {
		c.RPC.WalletPromptTimeout = def.RPC.WalletPromptTimeout
	}
}

// Validate reports configuration the backend cannot start with.
func (c Config) Validate() error {
	var errs []error
	if err := c.Contract.Validate(); err != nil {
		errs = append(errs, err)
	}
	network, err := stacks.ParseNetwork(c.Network)
	if err != nil {
		errs = append(errs, err)
	} else if c.Contract.Validate() == nil && c.Contract.NetworkOf() != network {
		errs = append(errs, fmt.Errorf("contract %s is not a %s address", c.Contract.ID(), network))
	}
	if c.Wallet.FallbackAddress != "" {
		if _, _, err := clarity.DecodeAddress(c.Wallet.FallbackAddress); err != nil {
			errs = append(errs, fmt.Errorf("wallet.fallbackAddress: %w", err))
		}
	}
	if c.Wallet.SessionFile != "" && c.Wallet.SessionSecret == "" {
		errs = append(errs, errors.New("wallet.sessionSecret is required when wallet.sessionFile is set"))
	}
	if c.RPC.RequireToken && c.RPC.Token == "" {
		errs = append(errs, errors.New("COUNTER_RPC_TOKEN is required when rpc.requireToken is set"))
	}
	return errors.Join(errs...)
}

func (c Config) StacksNetwork() stacks.Network {
	n, err := stacks.ParseNetwork(c.Network)
	if err != nil {
		return c.Contract.NetworkOf()
	}
	return n
}
