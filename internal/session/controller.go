// Package session drives a wallet session against the SenseiNFT contract:
// detecting or requesting a connection, submitting mints, and keeping the
// mint counter in sync with contract events.
//
// State changes are guarded by compare-and-set transitions, so a second
// connect or mint issued while one is in flight fails with ErrBusy instead
// of racing the first.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"senseimint/internal/nft"
	"senseimint/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

const (
	OpDetect  = "detect connection"
	OpConnect = "request connection"
	OpMint    = "submit mint"
	OpWatch   = "watch events"
)

// Recorder receives controller metrics.
type Recorder interface {
	IncConnection(status string)
	IncMint(status string)
	IncEvent(name string)
	SetTotalMinted(total uint64)
	SetSubscriptions(n int)
}

type Options struct {
	// Wallet and Contract are nil when no wallet is available.
	Wallet   wallet.Provider
	Contract nft.Proxy

	ChainID        *big.Int
	Links          nft.Links
	TotalSupply    uint64
	ConfirmTimeout time.Duration // zero waits for confirmation as long as ctx allows

	Logger  zerolog.Logger
	Metrics Recorder
}

type Controller struct {
	wallet         wallet.Provider
	contract       nft.Proxy
	chainID        *big.Int
	links          nft.Links
	confirmTimeout time.Duration
	log            zerolog.Logger
	metrics        Recorder
	now            func() time.Time

	mu      sync.Mutex
	state   State
	address *common.Address
	network string
	status  MintStatus
	notice  *Notice
	lastTx  common.Hash
	sub     *Subscription
	closed  bool

	changes chan struct{}
}

func NewController(opts Options) *Controller {
	chainID := opts.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Controller{
		wallet:         opts.Wallet,
		contract:       opts.Contract,
		chainID:        chainID,
		links:          opts.Links,
		confirmTimeout: opts.ConfirmTimeout,
		log:            opts.Logger.With().Str("component", "session").Logger(),
		metrics:        metrics,
		now:            time.Now,
		status:         MintStatus{TotalSupply: opts.TotalSupply},
		changes:        make(chan struct{}, 1),
	}
}

// Changes signals after every state change. Signals coalesce; read Snapshot on receipt.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:      c.state,
		Network:    c.network,
		Status:     c.status,
		LastTx:     c.lastTx,
		Subscribed: c.sub != nil,
	}
	if c.address != nil {
		addr := *c.address
		snap.ConnectedAddress = &addr
	}
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}
	return snap
}

// CollectionLink is the gallery page of the whole collection.
func (c *Controller) CollectionLink() string {
	return c.links.CollectionPage()
}

// DismissNotice clears the current notice.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
	c.signal()
}

// DetectExistingConnection picks up an account authorized earlier, without prompting.
// No authorized account is not an error: the session simply stays disconnected.
func (c *Controller) DetectExistingConnection(ctx context.Context) error {
	return c.connect(ctx, OpDetect, func(ctx context.Context) ([]common.Address, error) {
		accounts, err := c.wallet.AuthorizedAccounts(ctx)
		if err != nil {
			return nil, newError(OpDetect, KindProviderFailure, err)
		}
		return accounts, nil
	})
}

// RequestConnection asks the wallet for account access, possibly prompting the user.
func (c *Controller) RequestConnection(ctx context.Context) error {
	return c.connect(ctx, OpConnect, func(ctx context.Context) ([]common.Address, error) {
		accounts, err := c.wallet.RequestAccounts(ctx)
		if err != nil {
			return nil, newError(OpConnect, KindConnectionRejected, err)
		}
		if len(accounts) == 0 {
			return nil, newError(OpConnect, KindConnectionRejected, errors.New("wallet returned no accounts"))
		}
		return accounts, nil
	})
}

func (c *Controller) connect(ctx context.Context, op string, accountsFn func(context.Context) ([]common.Address, error)) error {
	if c.wallet == nil || c.contract == nil {
		c.metrics.IncConnection("unavailable")
		return c.report(newError(op, KindProviderUnavailable, nil))
	}

	prev, err := c.transition(op, StateConnecting, StateDisconnected, StateIdle)
	if err != nil {
		return c.report(err)
	}

	chainID, err := c.wallet.ChainID(ctx)
	if err != nil {
		c.restore(prev)
		c.metrics.IncConnection("failed")
		return c.report(newError(op, KindProviderFailure, err))
	}
	network := hexutil.EncodeBig(chainID)
	if chainID.Cmp(c.chainID) != 0 {
		c.disconnect(network)
		c.metrics.IncConnection("wrong_network")
		return c.report(newError(op, KindWrongNetwork,
			fmt.Errorf("wallet is on chain %s, want %s", network, hexutil.EncodeBig(c.chainID))))
	}

	accounts, err := accountsFn(ctx)
	if err != nil {
		c.restore(prev)
		c.metrics.IncConnection("failed")
		return c.report(err)
	}
	if len(accounts) == 0 {
		c.log.Info().Msg("no authorized account found")
		c.disconnect(network)
		c.metrics.IncConnection("none")
		return nil
	}

	account := accounts[0]
	sub, total, err := c.openSubscription(ctx)
	if err != nil {
		c.restore(prev)
		c.metrics.IncConnection("failed")
		return c.report(newError(op, KindProviderFailure, err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		c.restore(prev)
		return newError(op, KindProviderFailure, ErrClosed)
	}
	old := c.sub
	c.sub = sub
	c.address = &account
	c.network = network
	c.status.TotalMinted = total
	c.state = StateIdle
	c.notice = nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	sub.start()

	c.metrics.IncConnection("connected")
	c.metrics.SetTotalMinted(total)
	c.metrics.SetSubscriptions(1)
	c.log.Info().Str("account", account.Hex()).Str("network", network).Uint64("total_minted", total).Msg("wallet connected")
	c.signal()
	return nil
}

// SubmitMint sends makeSenseiNFT and waits for it to be mined. The minted
// total is not touched here; it arrives through the TotalNFTMinted event.
func (c *Controller) SubmitMint(ctx context.Context) (*types.Receipt, error) {
	if c.wallet == nil || c.contract == nil {
		c.metrics.IncMint("unavailable")
		return nil, c.report(newError(OpMint, KindProviderUnavailable, nil))
	}

	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.state = StateMinting
	case StateDisconnected:
		c.mu.Unlock()
		return nil, c.report(newError(OpMint, KindNotConnected, nil))
	default:
		state := c.state
		c.mu.Unlock()
		return nil, c.report(newError(OpMint, KindBusy, fmt.Errorf("state %s", state)))
	}
	c.mu.Unlock()
	c.signal()

	defer func() {
		c.mu.Lock()
		if c.state == StateMinting {
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.signal()
	}()

	opts, err := c.wallet.Transactor(ctx)
	if err != nil {
		c.metrics.IncMint("failed")
		return nil, c.report(newError(OpMint, KindProviderFailure, err))
	}

	c.log.Info().Str("account", opts.From.Hex()).Msg("submitting mint, waiting for wallet signature")
	tx, err := c.contract.MakeSenseiNFT(opts)
	if err != nil {
		c.metrics.IncMint("rejected")
		return nil, c.report(newError(OpMint, KindMintRejected, err))
	}

	c.mu.Lock()
	c.lastTx = tx.Hash()
	c.mu.Unlock()
	c.signal()
	c.log.Info().Str("tx", tx.Hash().Hex()).Msg("mining, please wait")

	waitCtx := ctx
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}

	receipt, err := c.contract.WaitMined(waitCtx, tx)
	if err != nil {
		c.metrics.IncMint("unconfirmed")
		return nil, c.report(newError(OpMint, KindMintRejected, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		c.metrics.IncMint("reverted")
		return receipt, c.report(newError(OpMint, KindMintReverted, fmt.Errorf("tx %s reverted", tx.Hash().Hex())))
	}

	c.metrics.IncMint("confirmed")
	c.log.Info().Str("tx", tx.Hash().Hex()).Uint64("block", blockNumber(receipt)).Msg("mint mined")
	return receipt, nil
}

// Close tears down the event subscription. The session state is kept, and a
// connection still in flight is not installed.
func (c *Controller) Close() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.closed = true
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
		c.metrics.SetSubscriptions(0)
		c.signal()
	}
}

// transition moves to next when the current state is one of from.
func (c *Controller) transition(op string, next State, from ...State) (State, error) {
	c.mu.Lock()
	cur := c.state
	allowed := false
	for _, s := range from {
		if cur == s {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return cur, newError(op, KindBusy, fmt.Errorf("state %s", cur))
	}
	c.state = next
	c.mu.Unlock()
	c.signal()
	return cur, nil
}

// restore returns to the state held before a failed connection attempt.
func (c *Controller) restore(prev State) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = prev
	}
	c.mu.Unlock()
	c.signal()
}

// disconnect clears the session and drops its subscription.
func (c *Controller) disconnect(network string) {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.address = nil
	c.network = network
	c.state = StateDisconnected
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
		c.metrics.SetSubscriptions(0)
	}
	c.signal()
}

// report logs err, stores it as the current notice and returns it.
func (c *Controller) report(err error) error {
	var se *Error
	if !errors.As(err, &se) {
		se = newError("session", KindProviderFailure, err)
	}
	c.log.Warn().Err(se.Err).Str("op", se.Op).Str("kind", se.Kind.String()).Msg("session error")

	c.mu.Lock()
	c.notice = &Notice{Kind: se.Kind, Message: noticeMessage(se, c.chainID), At: c.now()}
	c.mu.Unlock()
	c.signal()
	return se
}

func (c *Controller) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func noticeMessage(err *Error, want *big.Int) string {
	switch err.Kind {
	case KindProviderUnavailable:
		return "No wallet available. Configure a private key or keystore to proceed!"
	case KindWrongNetwork:
		return fmt.Sprintf("You are not connected to the required network (chain %s)!", hexutil.EncodeBig(want))
	case KindConnectionRejected:
		return "Failed to connect to your wallet."
	case KindMintRejected:
		return "Minting failed: the transaction was rejected or never confirmed."
	case KindMintReverted:
		return "Minting failed: the transaction reverted on-chain."
	case KindNotConnected:
		return "Connect your wallet before minting."
	case KindBusy:
		return "Please wait for the current request to finish."
	default:
		return "Something went wrong talking to the wallet: " + err.Error()
	}
}

func blockNumber(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

type nopRecorder struct{}

func (nopRecorder) IncConnection(string) {}
func (nopRecorder) IncMint(string) {}
func (nopRecorder) IncEvent(string) {}
func (nopRecorder) SetTotalMinted(uint64) {}
func (nopRecorder) SetSubscriptions(int) {}
