package nft

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// FakeProxy is an in-memory SenseiNFT for tests and offline runs. Mints are
// held until Confirm is called, then the events fire like the real contract.
type FakeProxy struct {
	mu        sync.Mutex
	total     *big.Int
	nextID    *big.Int
	pending   map[common.Hash]chan *types.Receipt
	confirmed map[common.Hash]bool
	nonce     uint64
	live      []chan error

	totalFeed event.Feed
	mintFeed  event.Feed

	// SubmitErr, TotalErr and WatchErr force the matching call to fail.
	SubmitErr error
	TotalErr  error
	WatchErr  error
	// Revert makes confirmed mints produce a failed receipt.
	Revert bool
	// AutoConfirm confirms every mint as soon as it is submitted.
	AutoConfirm bool

	submitted int
	watchers  int
}

func NewFakeProxy(total int64) *FakeProxy {
	return &FakeProxy{
		total:     big.NewInt(total),
		nextID:    big.NewInt(total),
		pending:   make(map[common.Hash]chan *types.Receipt),
		confirmed: make(map[common.Hash]bool),
	}
}

func (f *FakeProxy) MakeSenseiNFT(opts *bind.TransactOpts) (*types.Transaction, error) {
	f.mu.Lock()
	if f.SubmitErr != nil {
		err := f.SubmitErr
		f.mu.Unlock()
		return nil, err
	}
	if opts == nil {
		f.mu.Unlock()
		return nil, errors.New("transactor is required")
	}
	tx := types.NewTx(&types.LegacyTx{Nonce: f.nonce, Gas: 21000, GasPrice: big.NewInt(1)})
	f.nonce++
	f.submitted++
	f.pending[tx.Hash()] = make(chan *types.Receipt, 1)
	auto := f.AutoConfirm
	f.mu.Unlock()

	if auto {
		f.confirm(tx.Hash(), opts.From)
	}
	return tx, nil
}

func (f *FakeProxy) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	ch, ok := f.pending[tx.Hash()]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	select {
	case receipt := <-ch:
		return receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Confirm mines a pending transaction on behalf of sender. Unknown or already
// confirmed hashes are ignored.
func (f *FakeProxy) Confirm(hash common.Hash, sender common.Address) {
	f.confirm(hash, sender)
}

func (f *FakeProxy) confirm(hash common.Hash, sender common.Address) {
	f.mu.Lock()
	ch, ok := f.pending[hash]
	if ok && f.confirmed[hash] {
		ok = false
	}
	if ok {
		f.confirmed[hash] = true
	}
	revert := f.Revert
	var tokenID, total *big.Int
	if ok && !revert {
		tokenID = new(big.Int).Set(f.nextID)
		f.nextID.Add(f.nextID, big.NewInt(1))
		f.total.Add(f.total, big.NewInt(1))
		total = new(big.Int).Set(f.total)
	}
	f.mu.Unlock()
	if !ok {
		return
	}

	status := types.ReceiptStatusSuccessful
	if revert {
		status = types.ReceiptStatusFailed
	} else {
		f.EmitNewSenseiNFTMinted(sender, tokenID)
		f.EmitTotalNFTMinted(total)
	}
	ch <- &types.Receipt{TxHash: hash, Status: status}
}

func (f *FakeProxy) GetTotalNFTS(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TotalErr != nil {
		return nil, f.TotalErr
	}
	return new(big.Int).Set(f.total), nil
}

// EmitTotalNFTMinted delivers a TotalNFTMinted event to every watcher.
func (f *FakeProxy) EmitTotalNFTMinted(total *big.Int) int {
	return f.totalFeed.Send(&TotalNFTMinted{TotalNfts: total})
}

// EmitNewSenseiNFTMinted delivers a NewSenseiNFTMinted event to every watcher.
func (f *FakeProxy) EmitNewSenseiNFTMinted(sender common.Address, tokenID *big.Int) int {
	return f.mintFeed.Send(&NewSenseiNFTMinted{Sender: sender, TokenId: tokenID})
}

func (f *FakeProxy) WatchTotalNFTMinted(_ context.Context, sink chan<- *TotalNFTMinted) (event.Subscription, error) {
	if err := f.watch(); err != nil {
		return nil, err
	}
	return f.track(f.totalFeed.Subscribe(sink)), nil
}

func (f *FakeProxy) WatchNewSenseiNFTMinted(_ context.Context, sink chan<- *NewSenseiNFTMinted) (event.Subscription, error) {
	if err := f.watch(); err != nil {
		return nil, err
	}
	return f.track(f.mintFeed.Subscribe(sink)), nil
}

// track wraps a feed subscription so DropWatches can fail it.
func (f *FakeProxy) track(inner event.Subscription) event.Subscription {
	fail := make(chan error, 1)
	f.mu.Lock()
	f.live = append(f.live, fail)
	f.mu.Unlock()
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer inner.Unsubscribe()
		select {
		case err := <-fail:
			return err
		case err := <-inner.Err():
			return err
		case <-quit:
			return nil
		}
	})
}

// DropWatches fails every watch registered so far with err, the way a
// closed websocket ends eth_subscribe.
func (f *FakeProxy) DropWatches(err error) {
	f.mu.Lock()
	live := f.live
	f.live = nil
	f.mu.Unlock()
	for _, ch := range live {
		select {
		case ch <- err:
		default:
		}
	}
}

func (f *FakeProxy) watch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchErr != nil {
		return f.WatchErr
	}
	f.watchers++
	return nil
}

// Submitted counts accepted mint submissions.
func (f *FakeProxy) Submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// Watchers counts successful watch registrations over the proxy's lifetime.
func (f *FakeProxy) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchers
}

// Pending returns the hashes of unconfirmed mints.
func (f *FakeProxy) Pending() []common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Hash, 0, len(f.pending))
	for h := range f.pending {
		if !f.confirmed[h] {
			out = append(out, h)
		}
	}
	return out
}
