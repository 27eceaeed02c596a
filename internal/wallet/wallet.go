// Package wallet owns the chain connection capabilities.
//
// Ownership boundary:
// - read-only provider handle (chain id, contract calls)
// - transaction-signing capability derived from a local ECDSA key
// - active-chain verification against the configured network
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrWrongNetwork = errors.New("wallet: wrong network")
	ErrNoSigner     = errors.New("wallet: no signing capability")
	ErrInvalidKey   = errors.New("wallet: invalid private key")
)

// Backend is the slice of the JSON-RPC surface the controller needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer authorizes state-changing calls for one address.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewSigner parses a hex-encoded secp256k1 private key, with or without
// a 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Signer{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.addr
}

func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// Bridge bundles a provider backend with an optional signer.
type Bridge struct {
	backend Backend
	signer  *Signer
}

// Dial connects the JSON-RPC backend. A nil signer yields a
// provider-only bridge.
func Dial(ctx context.Context, rpcURL string, signer *Signer) (*Bridge, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial %s: %w", rpcURL, err)
	}
	return NewBridge(client, signer), nil
}

// NewBridge wraps an existing backend. Used by tests with fake backends.
func NewBridge(backend Backend, signer *Signer) *Bridge {
	return &Bridge{backend: backend, signer: signer}
}

func (b *Bridge) Backend() Backend {
	return b.backend
}

func (b *Bridge) SignerAvailable() bool {
	return b.signer != nil
}

// Signer returns the signing capability or ErrNoSigner in
// provider-only mode.
func (b *Bridge) Signer() (*Signer, error) {
	if b.signer == nil {
		return nil, ErrNoSigner
	}
	return b.signer, nil
}

// VerifyChain checks the active chain identifier against the expected
// network and fails fast with ErrWrongNetwork on a mismatch.
func (b *Bridge) VerifyChain(ctx context.Context, want uint64) error {
	got, err := b.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("wallet: chain id query: %w", err)
	}
	if !got.IsUint64() || got.Uint64() != want {
		return fmt.Errorf("%w: connected to chain %s, expected %d", ErrWrongNetwork, got, want)
	}
	return nil
}
