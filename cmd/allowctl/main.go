package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vkoval/allowctl/internal/config"
	"github.com/vkoval/allowctl/internal/contract"
	"github.com/vkoval/allowctl/internal/logging"
	"github.com/vkoval/allowctl/internal/observability"
	"github.com/vkoval/allowctl/internal/session"
	"github.com/vkoval/allowctl/internal/ui"
	"github.com/vkoval/allowctl/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "allowctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "allowctl.toml", "path to the runtime config")
	overridePath := flag.String("override", "", "optional operator override file")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("allowctl")
	observability.RegisterMetrics()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *overridePath != "" {
		cfg, err = applyOverrides(cfg, *overridePath)
		if err != nil {
			return err
		}
	}

	var signer *wallet.Signer
	if strings.TrimSpace(cfg.PrivateKey) != "" {
		signer, err = wallet.NewSigner(cfg.PrivateKey)
		if err != nil {
			return err
		}
		logger.Info().Str("address", signer.Address().Hex()).Msg("signer_loaded")
	} else {
		logger.Warn().Msg("no private key configured, provider-only mode")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	bridge, err := wallet.Dial(dialCtx, cfg.RPCURL, signer)
	if err != nil {
		return err
	}

	list, err := contract.New(common.HexToAddress(cfg.ContractAddress), bridge.Backend())
	if err != nil {
		return err
	}

	ctrl := session.New("allowctl", session.Config{
		ExpectedChainID:    cfg.ChainID,
		ReceiptMaxAttempts: cfg.Receipt.MaxAttempts,
		ReceiptBackoff: session.BackoffConfig{
			InitialDelay: cfg.Receipt.InitialDelay(),
			Multiplier:   cfg.Receipt.Multiplier,
			MaxDelay:     cfg.Receipt.MaxDelay(),
			Jitter:       cfg.Receipt.Jitter,
		},
	}, bridge, list, logger)

	srv, err := ui.New(ui.Config{
		App:         "allowctl",
		ListenAddr:  cfg.ListenAddr,
		CorsOrigins: cfg.CorsOrigins,
		AuthToken:   cfg.AuthToken,
		TLSCert:     cfg.TLSCert,
		TLSKey:      cfg.TLSKey,
	}, ctrl, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("contract", cfg.ContractAddress).
		Uint64("chain", cfg.ChainID).
		Msg("serving")
	return srv.Run()
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.FromEnv()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.FromEnv()
	}
	return config.Load(path)
}
