// Package contract is the client for the fixed allowlist contract.
//
// Three entry points are consumed: the enroll write, the per-address
// membership predicate and the enrollment counter. The ABI is embedded
// so the binary carries no runtime file dependency.
package contract

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vkoval/allowctl/internal/wallet"
)

const (
	methodJoin       = "addAddressToWhitelist"
	methodMembership = "whitelistedAddresses"
	methodCount      = "numAddressesWhitelisted"
	methodMaxSeats   = "maxWhitelistedAddresses"
)

var (
	ErrUnexpectedResult = errors.New("contract: unexpected call result")

	//go:embed allowlist.abi.json
	allowlistABIJSON string

	abiOnce   sync.Once
	parsedABI abi.ABI
	abiErr    error
)

func allowlistABI() (abi.ABI, error) {
	abiOnce.Do(func() {
		parsedABI, abiErr = abi.JSON(strings.NewReader(allowlistABIJSON))
	})
	return parsedABI, abiErr
}

// Allowlist binds the fixed contract address to a provider backend.
type Allowlist struct {
	addr    common.Address
	abi     abi.ABI
	backend wallet.Backend
}

func New(addr common.Address, backend wallet.Backend) (*Allowlist, error) {
	parsed, err := allowlistABI()
	if err != nil {
		return nil, fmt.Errorf("contract: parse abi: %w", err)
	}
	return &Allowlist{
		addr:    addr,
		abi:     parsed,
		backend: backend,
	}, nil
}

func (a *Allowlist) Address() common.Address {
	return a.addr
}

// IsWhitelisted queries the membership predicate for one address.
func (a *Allowlist) IsWhitelisted(ctx context.Context, addr common.Address) (bool, error) {
	out, err := a.call(ctx, methodMembership, addr)
	if err != nil {
		return false, err
	}
	member, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResult, methodMembership, out[0])
	}
	return member, nil
}

// Count queries the enrollment counter.
func (a *Allowlist) Count(ctx context.Context) (uint64, error) {
	out, err := a.call(ctx, methodCount)
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResult, methodCount, out[0])
	}
	return uint64(count), nil
}

// MaxSeats queries the enrollment cap.
func (a *Allowlist) MaxSeats(ctx context.Context) (uint64, error) {
	out, err := a.call(ctx, methodMaxSeats)
	if err != nil {
		return 0, err
	}
	seats, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResult, methodMaxSeats, out[0])
	}
	return uint64(seats), nil
}

// SubmitJoin signs and submits the enroll transaction and returns its
// hash. Confirmation is the caller's concern.
func (a *Allowlist) SubmitJoin(ctx context.Context, signer *wallet.Signer, chainID *big.Int) (common.Hash, error) {
	data, err := a.abi.Pack(methodJoin)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contract: pack %s: %w", methodJoin, err)
	}

	from := signer.Address()
	nonce, err := a.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contract: pending nonce: %w", err)
	}
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contract: gas price: %w", err)
	}
	gasLimit, err := a.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &a.addr,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("contract: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.addr,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contract: sign tx: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("contract: send tx: %w", err)
	}
	return signed.Hash(), nil
}

func (a *Allowlist) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: pack %s: %w", method, err)
	}
	ret, err := a.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &a.addr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract: call %s: %w", method, err)
	}
	out, err := a.abi.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("contract: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", ErrUnexpectedResult, method)
	}
	return out, nil
}
