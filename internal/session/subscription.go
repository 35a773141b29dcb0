package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"senseimint/internal/contracts"
	"senseimint/internal/nft"

	"github.com/ethereum/go-ethereum/event"
)

const eventBuffer = 16

// Subscription owns the two contract watches of one connected session. It is
// replaced, never shared, when the session reconnects, so listeners do not pile up.
type Subscription struct {
	c      *Controller
	ctx    context.Context
	cancel context.CancelFunc

	totals  chan *nft.TotalNFTMinted
	mints   chan *nft.NewSenseiNFTMinted
	totalWS event.Subscription
	mintWS  event.Subscription

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// openSubscription registers both watches, then reads the current total so
// no event between the read and the watch is missed.
func (c *Controller) openSubscription(ctx context.Context) (*Subscription, uint64, error) {
	// Watches outlive the connect call; they end with Close.
	watchCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		c:      c,
		ctx:    watchCtx,
		cancel: cancel,
		totals: make(chan *nft.TotalNFTMinted, eventBuffer),
		mints:  make(chan *nft.NewSenseiNFTMinted, eventBuffer),
		done:   make(chan struct{}),
	}

	var err error
	s.totalWS, err = c.contract.WatchTotalNFTMinted(watchCtx, s.totals)
	if err != nil {
		cancel()
		return nil, 0, err
	}
	s.mintWS, err = c.contract.WatchNewSenseiNFTMinted(watchCtx, s.mints)
	if err != nil {
		s.totalWS.Unsubscribe()
		cancel()
		return nil, 0, err
	}

	total, err := c.contract.GetTotalNFTS(ctx)
	if err != nil {
		s.unsubscribe()
		return nil, 0, err
	}
	if !total.IsUint64() {
		s.unsubscribe()
		return nil, 0, fmt.Errorf("total %s out of range", total)
	}
	return s, total.Uint64(), nil
}

func (s *Subscription) start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.totals:
			s.c.applyTotal(s, ev)
		case ev := <-s.mints:
			s.c.applyMinted(s, ev)
		case err := <-s.totalWS.Err():
			s.c.watchFailed(s, contracts.EventTotalNFTMinted, err)
			return
		case err := <-s.mintWS.Err():
			s.c.watchFailed(s, contracts.EventNewSenseiNFTMinted, err)
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Subscription) unsubscribe() {
	s.cancel()
	s.totalWS.Unsubscribe()
	s.mintWS.Unsubscribe()
}

// Close unsubscribes both watches and waits for the pump to exit.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		if s.started.Load() {
			<-s.done
		}
	})
}

func (c *Controller) applyTotal(s *Subscription, ev *nft.TotalNFTMinted) {
	if ev == nil || ev.TotalNfts == nil || !ev.TotalNfts.IsUint64() {
		return
	}
	total := ev.TotalNfts.Uint64()

	c.mu.Lock()
	if c.sub != s {
		c.mu.Unlock()
		return
	}
	c.status.TotalMinted = total
	c.mu.Unlock()

	c.metrics.IncEvent(contracts.EventTotalNFTMinted)
	c.metrics.SetTotalMinted(total)
	c.log.Debug().Uint64("total", total).Msg("total minted updated")
	c.signal()
}

// applyMinted reacts to every mint, not only ours.
func (c *Controller) applyMinted(s *Subscription, ev *nft.NewSenseiNFTMinted) {
	if ev == nil {
		return
	}
	link := c.links.Asset(ev.TokenId)

	c.mu.Lock()
	if c.sub != s {
		c.mu.Unlock()
		return
	}
	c.status.LastMintedMessage = nft.MintedMessage
	c.status.LastMintedTokenLink = link
	c.mu.Unlock()

	c.metrics.IncEvent(contracts.EventNewSenseiNFTMinted)
	c.log.Info().Str("sender", ev.Sender.Hex()).Str("link", link).Msg("new nft minted")
	c.signal()
}

// watchFailed drops the session of a broken subscription. The user
// reconnects to subscribe again.
func (c *Controller) watchFailed(s *Subscription, name string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	current := c.sub == s
	if current {
		c.sub = nil
		c.address = nil
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	if !current {
		return
	}

	s.unsubscribe()
	c.metrics.SetSubscriptions(0)
	_ = c.report(newError(OpWatch, KindProviderFailure, fmt.Errorf("%s: %w", name, err)))
}
