package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vkoval/allowctl/internal/config"
)

// overrideFile carries operator overrides layered on top of the
// runtime config. Only keys present in the file are applied.
type overrideFile struct {
	RPCURL              string   `toml:"rpc_url"`
	ChainID             uint64   `toml:"chain_id"`
	ContractAddress     string   `toml:"contract_address"`
	ListenAddr          string   `toml:"listen_addr"`
	CorsOrigins         []string `toml:"cors_origins"`
	AuthToken           string   `toml:"auth_token"`
	ReceiptInitialDelay string   `toml:"receipt_initial_delay"`
	ReceiptMaxDelay     string   `toml:"receipt_max_delay"`
	ReceiptMaxAttempts  int      `toml:"receipt_max_attempts"`
}

func applyOverrides(cfg config.Config, path string) (config.Config, error) {
	var raw overrideFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.Config{}, fmt.Errorf("load override file: %w", err)
	}

	if meta.IsDefined("rpc_url") {
		if url := strings.TrimSpace(raw.RPCURL); url != "" {
			cfg.RPCURL = url
		}
	}

	if meta.IsDefined("chain_id") {
		cfg.ChainID = raw.ChainID
	}

	if meta.IsDefined("contract_address") {
		cfg.ContractAddress = strings.TrimSpace(raw.ContractAddress)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}

	if meta.IsDefined("receipt_initial_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReceiptInitialDelay))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse receipt_initial_delay: %w", err)
		}
		cfg.Receipt.InitialDelayMS = d.Milliseconds()
	}

	if meta.IsDefined("receipt_max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReceiptMaxDelay))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse receipt_max_delay: %w", err)
		}
		cfg.Receipt.MaxDelayMS = d.Milliseconds()
	}

	if meta.IsDefined("receipt_max_attempts") {
		cfg.Receipt.MaxAttempts = raw.ReceiptMaxAttempts
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
