package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vkoval/allowctl/internal/observability"
	"github.com/vkoval/allowctl/internal/wallet"
)

var (
	ErrNotConnected   = errors.New("session: not connected")
	ErrBusy           = errors.New("session: operation already in flight")
	ErrAlreadyMember  = errors.New("session: address already enrolled")
	ErrJoinReverted   = errors.New("session: join transaction reverted")
	ErrConfirmTimeout = errors.New("session: join confirmation timed out")
)

// Phase is the render-visible lifecycle state.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseNotMember    Phase = "not_member"
	PhaseJoining      Phase = "joining"
	PhaseMember       Phase = "member"
)

// AllowlistClient is the contract surface the controller drives.
// *contract.Allowlist satisfies it.
type AllowlistClient interface {
	IsWhitelisted(ctx context.Context, addr common.Address) (bool, error)
	Count(ctx context.Context) (uint64, error)
	SubmitJoin(ctx context.Context, signer *wallet.Signer, chainID *big.Int) (common.Hash, error)
}

// Config defines session handshake and confirmation-poll defaults.
type Config struct {
	ExpectedChainID    uint64
	ReceiptBackoff     BackoffConfig
	ReceiptMaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		ExpectedChainID:    11155111,
		ReceiptMaxAttempts: 60,
		ReceiptBackoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   1.5,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		},
	}
}

func (cfg Config) WithDefaults() Config {
	def := DefaultConfig()
	if cfg.ExpectedChainID == 0 {
		cfg.ExpectedChainID = def.ExpectedChainID
	}
	if cfg.ReceiptMaxAttempts <= 0 {
		cfg.ReceiptMaxAttempts = def.ReceiptMaxAttempts
	}
	if cfg.ReceiptBackoff.InitialDelay <= 0 {
		cfg.ReceiptBackoff = def.ReceiptBackoff
	}
	return cfg
}

// Snapshot is the controller state handed to the render function.
// Count and Joined are advisory caches of remote state.
type Snapshot struct {
	Connected       bool   `json:"connected"`
	SignerAvailable bool   `json:"signer_available"`
	Joined          bool   `json:"joined"`
	Pending         bool   `json:"pending"`
	WrongNetwork    bool   `json:"wrong_network"`
	Count           uint64 `json:"count"`
	Phase           Phase  `json:"phase"`
}

// Controller owns one wallet-connection lifecycle and the allowlist
// operations. All state lives here; nothing is package-global.
type Controller struct {
	name   string
	cfg    Config
	bridge *wallet.Bridge
	list   AllowlistClient
	logger zerolog.Logger
	rng    *rand.Rand

	journal *JoinJournal

	mu           sync.Mutex
	connected    bool
	connecting   bool
	wrongNetwork bool
	joined       bool
	pending      bool
	busy         bool
	count        uint64
}

func New(name string, cfg Config, bridge *wallet.Bridge, list AllowlistClient, logger zerolog.Logger) *Controller {
	return &Controller{
		name:    name,
		cfg:     cfg.WithDefaults(),
		bridge:  bridge,
		list:    list,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		journal: NewJoinJournal(),
	}
}

func (c *Controller) Journal() *JoinJournal {
	return c.journal
}

// Connect verifies the active chain and marks the session connected,
// then refreshes membership and count as side effects. Refresh
// failures are logged and do not fail the connect. Re-invoking while
// connected re-runs the handshake.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.connecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.connecting = false
		c.mu.Unlock()
	}()

	start := time.Now()
	err := c.bridge.VerifyChain(ctx, c.cfg.ExpectedChainID)
	observability.RecordChainCall(c.name, "chain_id", time.Since(start), err == nil)
	if err != nil {
		c.mu.Lock()
		c.connected = false
		c.wrongNetwork = errors.Is(err, wallet.ErrWrongNetwork)
		c.mu.Unlock()
		c.logger.Warn().Err(err).Uint64("expected_chain", c.cfg.ExpectedChainID).Msg("connect_failed")
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.wrongNetwork = false
	c.mu.Unlock()
	c.logger.Info().Uint64("chain", c.cfg.ExpectedChainID).Bool("signer", c.bridge.SignerAvailable()).Msg("connected")

	if c.bridge.SignerAvailable() {
		if err := c.RefreshMembership(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("membership_refresh_failed")
		}
	}
	if err := c.RefreshCount(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("count_refresh_failed")
	}
	return nil
}

// RefreshMembership queries the membership predicate for the signer
// address. On any remote error the cached value is left unchanged.
func (c *Controller) RefreshMembership(ctx context.Context) error {
	signer, err := c.bridge.Signer()
	if err != nil {
		return err
	}
	if !c.isConnected() {
		return ErrNotConnected
	}

	start := time.Now()
	member, err := c.list.IsWhitelisted(ctx, signer.Address())
	observability.RecordChainCall(c.name, "membership", time.Since(start), err == nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("address", signer.Address().Hex()).Msg("membership_query_failed")
		return err
	}

	c.mu.Lock()
	c.joined = member
	c.mu.Unlock()
	return nil
}

// RefreshCount queries the enrollment counter through the provider
// handle. On any remote error the cached value is left unchanged.
func (c *Controller) RefreshCount(ctx context.Context) error {
	if !c.isConnected() {
		return ErrNotConnected
	}

	start := time.Now()
	count, err := c.list.Count(ctx)
	observability.RecordChainCall(c.name, "count", time.Since(start), err == nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("count_query_failed")
		return err
	}

	c.mu.Lock()
	c.count = count
	c.mu.Unlock()
	return nil
}

// Join submits the enroll transaction, holds the pending-write flag
// until confirmation, then re-verifies membership and refreshes the
// count. Pending is cleared on every exit path; the journal keeps the
// attempt record.
func (c *Controller) Join(ctx context.Context) error {
	signer, err := c.bridge.Signer()
	if err != nil {
		return err
	}

	c.mu.Lock()
	switch {
	case !c.connected:
		c.mu.Unlock()
		return ErrNotConnected
	case c.joined:
		c.mu.Unlock()
		return ErrAlreadyMember
	case c.busy || c.pending:
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.pending = true
	c.mu.Unlock()

	attemptID := uuid.NewString()
	c.journal.Upsert(JoinAttempt{
		AttemptID:   attemptID,
		Address:     signer.Address().Hex(),
		State:       AttemptSubmitted,
		SubmittedAt: time.Now(),
	})

	err = c.runJoin(ctx, signer, attemptID)

	c.mu.Lock()
	c.pending = false
	c.busy = false
	c.mu.Unlock()
	return err
}

func (c *Controller) runJoin(ctx context.Context, signer *wallet.Signer, attemptID string) error {
	chainID := new(big.Int).SetUint64(c.cfg.ExpectedChainID)

	start := time.Now()
	hash, err := c.list.SubmitJoin(ctx, signer, chainID)
	observability.RecordChainCall(c.name, "join_submit", time.Since(start), err == nil)
	if err != nil {
		c.journal.MarkFailed(attemptID, time.Now(), err.Error())
		c.logger.Warn().Err(err).Str("attempt", attemptID).Msg("join_submit_failed")
		return err
	}

	if item, ok := c.journal.Get(attemptID); ok {
		item.TxHash = hash.Hex()
		c.journal.Upsert(item)
	}
	c.logger.Info().Str("attempt", attemptID).Str("tx", hash.Hex()).Msg("join_submitted")

	receipt, err := c.awaitReceipt(ctx, hash, attemptID)
	if err != nil {
		c.journal.MarkFailed(attemptID, time.Now(), err.Error())
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := fmt.Errorf("%w: tx %s", ErrJoinReverted, hash.Hex())
		c.journal.MarkFailed(attemptID, time.Now(), err.Error())
		return err
	}

	c.journal.MarkConfirmed(attemptID, time.Now())
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
	c.logger.Info().Str("attempt", attemptID).Str("tx", hash.Hex()).Msg("join_confirmed")

	c.afterConfirm(ctx, signer.Address())
	return nil
}

// awaitReceipt polls for the transaction receipt with backoff until it
// lands or the attempt budget runs out.
func (c *Controller) awaitReceipt(ctx context.Context, hash common.Hash, attemptID string) (*types.Receipt, error) {
	backend := c.bridge.Backend()
	for attempt := 1; attempt <= c.cfg.ReceiptMaxAttempts; attempt++ {
		if err := sleepBackoff(ctx, NextBackoffDelay(c.cfg.ReceiptBackoff, attempt, c.rng)); err != nil {
			return nil, fmt.Errorf("session: confirmation wait: %w", err)
		}

		start := time.Now()
		receipt, err := backend.TransactionReceipt(ctx, hash)
		observability.RecordChainCall(c.name, "join_receipt", time.Since(start), err == nil)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				c.journal.MarkPoll(attemptID, time.Now(), "not mined")
				continue
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("session: confirmation wait: %w", ctx.Err())
			}
			c.journal.MarkPoll(attemptID, time.Now(), err.Error())
			c.logger.Debug().Err(err).Str("tx", hash.Hex()).Int("poll", attempt).Msg("receipt_poll_failed")
			continue
		}
		c.journal.MarkPoll(attemptID, time.Now(), "")
		return receipt, nil
	}
	return nil, fmt.Errorf("%w: tx %s after %d polls", ErrConfirmTimeout, hash.Hex(), c.cfg.ReceiptMaxAttempts)
}

// afterConfirm re-verifies membership against the read path instead of
// flipping the flag blindly. If the re-check itself fails the
// optimistic true stands, since the write is confirmed on chain.
func (c *Controller) afterConfirm(ctx context.Context, addr common.Address) {
	start := time.Now()
	member, err := c.list.IsWhitelisted(ctx, addr)
	observability.RecordChainCall(c.name, "membership", time.Since(start), err == nil)

	c.mu.Lock()
	if err != nil {
		c.joined = true
	} else {
		c.joined = member
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Msg("membership_recheck_failed_assuming_joined")
	}

	if err := c.RefreshCount(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("count_refresh_failed")
	}
}

func (c *Controller) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Snapshot returns a copy of the render-visible state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Connected:       c.connected,
		SignerAvailable: c.bridge.SignerAvailable(),
		Joined:          c.joined,
		Pending:         c.pending,
		WrongNetwork:    c.wrongNetwork,
		Count:           c.count,
	}
	s.Phase = phaseOf(s, c.connecting)
	return s
}

func phaseOf(s Snapshot, connecting bool) Phase {
	switch {
	case !s.Connected && connecting:
		return PhaseConnecting
	case !s.Connected:
		return PhaseDisconnected
	case s.Pending:
		return PhaseJoining
	case s.Joined:
		return PhaseMember
	default:
		return PhaseNotMember
	}
}
