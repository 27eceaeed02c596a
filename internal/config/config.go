package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

// Config is the allowctl runtime configuration.
//
// A missing private key puts the process in provider-only mode: reads work,
// join is rejected before any chain traffic.
type Config struct {
	RPCURL          string   `toml:"rpc_url" env:"ALLOWCTL_RPC_URL"`
	ChainID         uint64   `toml:"chain_id" env:"ALLOWCTL_CHAIN_ID"`
	ContractAddress string   `toml:"contract_address" env:"ALLOWCTL_CONTRACT_ADDRESS"`
	PrivateKey      string   `toml:"private_key" env:"ALLOWCTL_PRIVATE_KEY"`
	ListenAddr      string   `toml:"listen_addr" env:"ALLOWCTL_LISTEN_ADDR"`
	CorsOrigins     []string `toml:"cors_origins" env:"ALLOWCTL_CORS_ORIGINS"`
	AuthToken       string   `toml:"auth_token" env:"ALLOWCTL_AUTH_TOKEN"`
	TLSCert         string   `toml:"tls_cert" env:"ALLOWCTL_TLS_CERT"`
	TLSKey          string   `toml:"tls_key" env:"ALLOWCTL_TLS_KEY"`

	Receipt ReceiptConfig `toml:"receipt"`
}

// ReceiptConfig tunes confirmation polling after a join submission.
type ReceiptConfig struct {
	InitialDelayMS int64   `toml:"initial_delay_ms"`
	Multiplier     float64 `toml:"multiplier"`
	MaxDelayMS     int64   `toml:"max_delay_ms"`
	Jitter         bool    `toml:"jitter"`
	MaxAttempts    int     `toml:"max_attempts"`
}

func Default() Config {
	return Config{
		ChainID:     11155111,
		ListenAddr:  ":9000",
		CorsOrigins: []string{"http://localhost:3000"},
		Receipt: ReceiptConfig{
			InitialDelayMS: 1000,
			Multiplier:     1.5,
			MaxDelayMS:     10000,
			Jitter:         true,
			MaxAttempts:    60,
		},
	}
}

func (r ReceiptConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMS) * time.Millisecond
}

func (r ReceiptConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Load reads a TOML config, fills defaults, applies ALLOWCTL_* env
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a config without a file, for container-style deployments.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return fmt.Errorf("config missing rpc_url")
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("config missing chain_id")
	}
	if !common.IsHexAddress(strings.TrimSpace(cfg.ContractAddress)) {
		return fmt.Errorf("config contract_address invalid: %q", cfg.ContractAddress)
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("config missing listen_addr")
	}
	if key := strings.TrimSpace(cfg.PrivateKey); key != "" {
		hexKey := strings.TrimPrefix(key, "0x")
		if len(hexKey) != 64 {
			return fmt.Errorf("config private_key must be 32 hex-encoded bytes")
		}
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return fmt.Errorf("config tls_cert and tls_key must be set together")
	}
	if err := validateReceipt(cfg.Receipt); err != nil {
		return err
	}
	return nil
}

func validateReceipt(r ReceiptConfig) error {
	if r.InitialDelayMS <= 0 {
		return fmt.Errorf("receipt initial_delay_ms must be positive")
	}
	if r.Multiplier < 1.0 {
		return fmt.Errorf("receipt multiplier must be >= 1.0")
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("receipt max_attempts must be positive")
	}
	return nil
}
