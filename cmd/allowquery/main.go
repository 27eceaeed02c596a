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
	"github.com/vkoval/allowctl/internal/wallet"
)

// allowquery is a provider-only, one-shot view of the allowlist:
// the enrollment count and, when an address is given, its membership.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "allowquery: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "allowctl.toml", "path to the runtime config")
	address := flag.String("address", "", "address to check membership for")
	timeout := flag.Duration("timeout", 15*time.Second, "overall query timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bridge, err := wallet.Dial(ctx, cfg.RPCURL, nil)
	if err != nil {
		return err
	}
	if err := bridge.VerifyChain(ctx, cfg.ChainID); err != nil {
		return err
	}

	list, err := contract.New(common.HexToAddress(cfg.ContractAddress), bridge.Backend())
	if err != nil {
		return err
	}

	count, err := list.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("enrolled: %d\n", count)

	if seats, err := list.MaxSeats(ctx); err == nil {
		fmt.Printf("capacity: %d\n", seats)
	}

	if addr := strings.TrimSpace(*address); addr != "" {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address: %q", addr)
		}
		member, err := list.IsWhitelisted(ctx, common.HexToAddress(addr))
		if err != nil {
			return err
		}
		fmt.Printf("member[%s]: %v\n", common.HexToAddress(addr).Hex(), member)
	}
	return nil
}
