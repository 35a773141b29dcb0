package session

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"senseimint/internal/nft"
	"senseimint/internal/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

type stubWallet struct {
	mu          sync.Mutex
	chainID     int64
	chainErr    error
	authorized  []common.Address
	requestErr  error
	requested   int
	transactErr error
}

func (w *stubWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requested++
	if w.requestErr != nil {
		return nil, w.requestErr
	}
	w.authorized = []common.Address{alice}
	return w.authorized, nil
}

func (w *stubWallet) AuthorizedAccounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]common.Address(nil), w.authorized...), nil
}

func (w *stubWallet) ChainID(context.Context) (*big.Int, error) {
	if w.chainErr != nil {
		return nil, w.chainErr
	}
	return big.NewInt(w.chainID), nil
}

func (w *stubWallet) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if w.transactErr != nil {
		return nil, w.transactErr
	}
	return &bind.TransactOpts{From: alice, Context: ctx}, nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordingMetrics) inc(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[key]++
}

func (r *recordingMetrics) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *recordingMetrics) IncConnection(status string) { r.inc("connection:" + status) }
func (r *recordingMetrics) IncMint(status string) { r.inc("mint:" + status) }
func (r *recordingMetrics) IncEvent(name string) { r.inc("event:" + name) }
func (r *recordingMetrics) SetTotalMinted(uint64) {}
func (r *recordingMetrics) SetSubscriptions(int) {}

func testLinks() nft.Links {
	return nft.Links{GalleryBase: "https://testnets.opensea.io", Contract: testContract, Collection: "senseinft"}
}

func newTestController(w wallet.Provider, proxy nft.Proxy, opts ...func(*Options)) *Controller {
	o := Options{
		ChainID:     big.NewInt(4),
		Links:       testLinks(),
		TotalSupply: 50,
		Logger:      zerolog.Nop(),
	}
	if w != nil {
		o.Wallet = w
	}
	if proxy != nil {
		o.Contract = proxy
	}
	for _, fn := range opts {
		fn(&o)
	}
	return NewController(o)
}

func waitFor(t *testing.T, c *Controller, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func connected(t *testing.T, total int64) (*Controller, *stubWallet, *nft.FakeProxy) {
	t.Helper()
	w := &stubWallet{chainID: 4}
	proxy := nft.NewFakeProxy(total)
	c := newTestController(w, proxy)
	t.Cleanup(c.Close)
	if err := c.RequestConnection(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c, w, proxy
}

func TestProviderUnavailable(t *testing.T) {
	c := newTestController(nil, nil)
	ctx := context.Background()

	err := c.RequestConnection(ctx)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if KindOf(err) != KindProviderUnavailable {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}

	snap := c.Snapshot()
	if snap.Connected() || snap.State != StateDisconnected || snap.IsLoading() {
		t.Fatalf("expected session unset, got %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Kind != KindProviderUnavailable {
		t.Fatalf("expected provider notice, got %+v", snap.Notice)
	}

	if err := c.DetectExistingConnection(ctx); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("detect: expected ErrProviderUnavailable, got %v", err)
	}
	if _, err := c.SubmitMint(ctx); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("mint: expected ErrProviderUnavailable, got %v", err)
	}
}

func TestDetectWrongNetwork(t *testing.T) {
	w := &stubWallet{chainID: 1, authorized: []common.Address{alice}}
	proxy := nft.NewFakeProxy(0)
	c := newTestController(w, proxy)

	err := c.DetectExistingConnection(context.Background())
	if !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork, got %v", err)
	}

	snap := c.Snapshot()
	if snap.Connected() {
		t.Fatalf("wrong network must not connect the account")
	}
	if snap.IsLoading() || snap.State != StateDisconnected {
		t.Fatalf("expected idle disconnected state, got %s", snap.State)
	}
	if snap.Network != "0x1" {
		t.Fatalf("expected network 0x1, got %s", snap.Network)
	}
	if snap.Notice == nil || !strings.Contains(snap.Notice.Message, "0x4") {
		t.Fatalf("expected wrong network notice naming chain 0x4, got %+v", snap.Notice)
	}
	if proxy.Watchers() != 0 {
		t.Fatalf("expected no watches registered")
	}
}

func TestRequestConnectionWrongNetwork(t *testing.T) {
	w := &stubWallet{chainID: 1}
	c := newTestController(w, nft.NewFakeProxy(0))

	if err := c.RequestConnection(context.Background()); !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork, got %v", err)
	}
	if c.Snapshot().Connected() {
		t.Fatalf("expected session unset")
	}
}

func TestDetectWithoutAuthorizedAccount(t *testing.T) {
	w := &stubWallet{chainID: 4}
	c := newTestController(w, nft.NewFakeProxy(0))

	if err := c.DetectExistingConnection(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Connected() || snap.IsLoading() || snap.Notice != nil {
		t.Fatalf("expected quiet disconnected state, got %+v", snap)
	}
	if w.requested != 0 {
		t.Fatalf("detect must not prompt for accounts")
	}
}

func TestDetectExistingConnectionSubscribes(t *testing.T) {
	w := &stubWallet{chainID: 4, authorized: []common.Address{bob, alice}}
	proxy := nft.NewFakeProxy(12)
	metrics := &recordingMetrics{}
	c := newTestController(w, proxy, func(o *Options) { o.Metrics = metrics })
	defer c.Close()

	if err := c.DetectExistingConnection(context.Background()); err != nil {
		t.Fatalf("detect: %v", err)
	}

	snap := c.Snapshot()
	if !snap.Connected() || *snap.ConnectedAddress != bob {
		t.Fatalf("expected first authorized account, got %+v", snap.ConnectedAddress)
	}
	if snap.State != StateIdle || !snap.Subscribed {
		t.Fatalf("expected idle subscribed session, got %+v", snap)
	}
	if snap.Status.TotalMinted != 12 || snap.Status.TotalSupply != 50 {
		t.Fatalf("unexpected mint status %+v", snap.Status)
	}
	if proxy.Watchers() != 2 {
		t.Fatalf("expected two watches, got %d", proxy.Watchers())
	}
	if metrics.get("connection:connected") != 1 {
		t.Fatalf("expected connection metric")
	}
}

func TestRequestConnectionRejected(t *testing.T) {
	w := &stubWallet{chainID: 4, requestErr: wallet.ErrRequestRejected}
	c := newTestController(w, nft.NewFakeProxy(0))

	err := c.RequestConnection(context.Background())
	if !errors.Is(err, ErrConnectionRejected) {
		t.Fatalf("expected ErrConnectionRejected, got %v", err)
	}
	if !errors.Is(err, wallet.ErrRequestRejected) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Connected() || snap.IsLoading() {
		t.Fatalf("expected session unset and not loading, got %+v", snap)
	}
}

func TestConnectionProviderFailure(t *testing.T) {
	w := &stubWallet{chainErr: errors.New("rpc offline")}
	c := newTestController(w, nft.NewFakeProxy(0))

	err := c.RequestConnection(context.Background())
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	if c.Snapshot().State != StateDisconnected {
		t.Fatalf("expected disconnected")
	}
}

func TestWatchFailureLeavesSessionUnset(t *testing.T) {
	w := &stubWallet{chainID: 4}
	proxy := nft.NewFakeProxy(0)
	proxy.WatchErr = errors.New("notifications not supported")
	c := newTestController(w, proxy)

	if err := c.RequestConnection(context.Background()); !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Connected() || snap.State != StateDisconnected {
		t.Fatalf("expected session unset, got %+v", snap)
	}
}

func TestDroppedWatchDisconnectsUntilReconnect(t *testing.T) {
	c, _, proxy := connected(t, 3)

	proxy.DropWatches(errors.New("websocket closed"))
	snap := waitFor(t, c, "disconnect", func(s Snapshot) bool { return s.State == StateDisconnected && s.Notice != nil })
	if snap.Connected() || snap.Subscribed {
		t.Fatalf("expected session dropped, got %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Kind != KindProviderFailure {
		t.Fatalf("expected provider failure notice, got %+v", snap.Notice)
	}

	if err := c.RequestConnection(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if n := proxy.EmitTotalNFTMinted(big.NewInt(9)); n != 1 {
		t.Fatalf("expected one live listener after reconnect, got %d", n)
	}
	waitFor(t, c, "total 9", func(s Snapshot) bool { return s.Status.TotalMinted == 9 })
}

type slowTotals struct {
	*nft.FakeProxy
	entered chan struct{}
	release chan struct{}
}

func (s *slowTotals) GetTotalNFTS(ctx context.Context) (*big.Int, error) {
	close(s.entered)
	<-s.release
	return s.FakeProxy.GetTotalNFTS(ctx)
}

func TestCloseDuringConnectDropsSubscription(t *testing.T) {
	fake := nft.NewFakeProxy(1)
	proxy := &slowTotals{FakeProxy: fake, entered: make(chan struct{}), release: make(chan struct{})}
	c := newTestController(&stubWallet{chainID: 4}, proxy)

	done := make(chan error, 1)
	go func() { done <- c.RequestConnection(context.Background()) }()

	<-proxy.entered
	c.Close()
	close(proxy.release)

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Subscribed || snap.State != StateDisconnected {
		t.Fatalf("expected nothing installed after close, got %+v", snap)
	}
	if n := fake.EmitTotalNFTMinted(big.NewInt(2)); n != 0 {
		t.Fatalf("expected no listeners after close, got %d", n)
	}
}

func TestTotalEventReplacesCount(t *testing.T) {
	c, _, proxy := connected(t, 10)

	proxy.EmitTotalNFTMinted(big.NewInt(3))
	waitFor(t, c, "total 3", func(s Snapshot) bool { return s.Status.TotalMinted == 3 })

	proxy.EmitTotalNFTMinted(big.NewInt(17))
	waitFor(t, c, "total 17", func(s Snapshot) bool { return s.Status.TotalMinted == 17 })
}

func TestMintedEventBuildsLinkForAnySender(t *testing.T) {
	c, _, proxy := connected(t, 0)

	proxy.EmitNewSenseiNFTMinted(bob, big.NewInt(42))
	snap := waitFor(t, c, "mint link", func(s Snapshot) bool { return s.Status.LastMintedTokenLink != "" })

	want := "https://testnets.opensea.io/assets/" + testContract + "/42"
	if snap.Status.LastMintedTokenLink != want {
		t.Fatalf("link = %s, want %s", snap.Status.LastMintedTokenLink, want)
	}
	if snap.Status.LastMintedMessage != nft.MintedMessage {
		t.Fatalf("unexpected message %q", snap.Status.LastMintedMessage)
	}
}

func TestSubmitMintRequiresConnection(t *testing.T) {
	c := newTestController(&stubWallet{chainID: 4}, nft.NewFakeProxy(0))

	if _, err := c.SubmitMint(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestNoDoubleSubmission(t *testing.T) {
	c, _, proxy := connected(t, 0)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitMint(ctx)
		done <- err
	}()
	waitFor(t, c, "minting", func(s Snapshot) bool { return s.State == StateMinting && s.LastTx != (common.Hash{}) })

	if _, err := c.SubmitMint(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for second mint, got %v", err)
	}
	if err := c.RequestConnection(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for connect during mint, got %v", err)
	}
	if proxy.Submitted() != 1 {
		t.Fatalf("expected exactly one submission, got %d", proxy.Submitted())
	}

	pending := proxy.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one pending tx, got %d", len(pending))
	}
	proxy.Confirm(pending[0], alice)

	if err := <-done; err != nil {
		t.Fatalf("mint: %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Fatalf("expected idle after mint")
	}
}

func TestMintThenTotalEvent(t *testing.T) {
	c, _, proxy := connected(t, 4)
	ctx := context.Background()

	type result struct {
		receipt *types.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := c.SubmitMint(ctx)
		done <- result{r, err}
	}()
	waitFor(t, c, "mint submitted", func(s Snapshot) bool { return s.LastTx != (common.Hash{}) })

	// The event lands before the confirmation step completes.
	proxy.EmitTotalNFTMinted(big.NewInt(5))
	snap := waitFor(t, c, "total 5", func(s Snapshot) bool { return s.Status.TotalMinted == 5 })
	if !snap.IsLoading() {
		t.Fatalf("expected loading until confirmation, got %s", snap.State)
	}

	proxy.Confirm(snap.LastTx, alice)
	res := <-done
	if res.err != nil {
		t.Fatalf("mint: %v", res.err)
	}
	if res.receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("expected successful receipt")
	}

	snap = waitFor(t, c, "idle", func(s Snapshot) bool { return !s.IsLoading() })
	if snap.Status.TotalMinted != 5 {
		t.Fatalf("expected total 5, got %d", snap.Status.TotalMinted)
	}
}

func TestMintReverted(t *testing.T) {
	c, _, proxy := connected(t, 0)
	proxy.Revert = true
	proxy.AutoConfirm = true

	_, err := c.SubmitMint(context.Background())
	if !errors.Is(err, ErrMintReverted) {
		t.Fatalf("expected ErrMintReverted, got %v", err)
	}
	snap := c.Snapshot()
	if snap.IsLoading() || !snap.Connected() {
		t.Fatalf("expected connected idle session after revert, got %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Kind != KindMintReverted {
		t.Fatalf("expected revert notice, got %+v", snap.Notice)
	}
}

func TestMintRejectedByWallet(t *testing.T) {
	c, _, proxy := connected(t, 0)
	proxy.SubmitErr = errors.New("user denied transaction signature")

	if _, err := c.SubmitMint(context.Background()); !errors.Is(err, ErrMintRejected) {
		t.Fatalf("expected ErrMintRejected, got %v", err)
	}
	if c.Snapshot().IsLoading() {
		t.Fatalf("expected loading reset")
	}

	proxy.SubmitErr = nil
	proxy.AutoConfirm = true
	if _, err := c.SubmitMint(context.Background()); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestMintTransactorFailure(t *testing.T) {
	c, w, _ := connected(t, 0)
	w.transactErr = wallet.ErrUnauthorized

	_, err := c.SubmitMint(context.Background())
	if !errors.Is(err, ErrProviderFailure) || !errors.Is(err, wallet.ErrUnauthorized) {
		t.Fatalf("expected provider failure wrapping ErrUnauthorized, got %v", err)
	}
}

func TestUnconfirmedMintStaysLoading(t *testing.T) {
	c, _, proxy := connected(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitMint(ctx)
		done <- err
	}()

	waitFor(t, c, "minting", func(s Snapshot) bool { return s.State == StateMinting })
	time.Sleep(150 * time.Millisecond)
	if snap := c.Snapshot(); snap.State != StateMinting || !snap.IsLoading() {
		t.Fatalf("expected mint still loading without a confirmation, got %+v", snap)
	}
	if len(proxy.Pending()) != 1 {
		t.Fatalf("expected the mint to stay pending")
	}
	select {
	case err := <-done:
		t.Fatalf("mint returned before its context ended: %v", err)
	default:
	}

	cancel()
	if err := <-done; !errors.Is(err, ErrMintRejected) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled mint, got %v", err)
	}
	if c.Snapshot().IsLoading() {
		t.Fatalf("expected loading cleared once the caller gave up")
	}
}

func TestMintConfirmTimeout(t *testing.T) {
	w := &stubWallet{chainID: 4}
	proxy := nft.NewFakeProxy(0)
	c := newTestController(w, proxy, func(o *Options) { o.ConfirmTimeout = 200 * time.Millisecond })
	defer c.Close()
	if err := c.RequestConnection(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitMint(context.Background())
		done <- err
	}()

	waitFor(t, c, "minting", func(s Snapshot) bool { return s.State == StateMinting })

	err := <-done
	if !errors.Is(err, ErrMintRejected) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timed out mint, got %v", err)
	}
	if c.Snapshot().IsLoading() {
		t.Fatalf("expected loading cleared after timeout")
	}
}

func TestReconnectReplacesSubscription(t *testing.T) {
	c, _, proxy := connected(t, 1)

	if err := c.RequestConnection(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if proxy.Watchers() != 4 {
		t.Fatalf("expected two watch registrations per connect, got %d", proxy.Watchers())
	}

	if n := proxy.EmitTotalNFTMinted(big.NewInt(2)); n != 1 {
		t.Fatalf("expected exactly one live listener after reconnect, got %d", n)
	}
	waitFor(t, c, "total 2", func(s Snapshot) bool { return s.Status.TotalMinted == 2 })
}

func TestFailedReconnectKeepsSession(t *testing.T) {
	c, w, _ := connected(t, 1)
	w.mu.Lock()
	w.authorized = nil
	w.requestErr = errors.New("popup closed")
	w.mu.Unlock()

	if err := c.RequestConnection(context.Background()); !errors.Is(err, ErrConnectionRejected) {
		t.Fatalf("expected ErrConnectionRejected, got %v", err)
	}
	snap := c.Snapshot()
	if !snap.Connected() || snap.State != StateIdle || !snap.Subscribed {
		t.Fatalf("expected previous session kept, got %+v", snap)
	}
}

func TestCloseStopsListening(t *testing.T) {
	c, _, proxy := connected(t, 1)
	c.Close()

	if c.Snapshot().Subscribed {
		t.Fatalf("expected subscription gone")
	}
	if n := proxy.EmitTotalNFTMinted(big.NewInt(9)); n != 0 {
		t.Fatalf("expected no listeners after close, got %d", n)
	}
	if c.Snapshot().Status.TotalMinted != 1 {
		t.Fatalf("closed session must ignore events")
	}
}

func TestChangesSignal(t *testing.T) {
	c, _, proxy := connected(t, 0)
	for len(c.Changes()) > 0 {
		<-c.Changes()
	}

	proxy.EmitTotalNFTMinted(big.NewInt(1))
	select {
	case <-c.Changes():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change signal")
	}
}

func TestSnapshotFlags(t *testing.T) {
	snap := Snapshot{State: StateIdle, Status: MintStatus{TotalMinted: 50, TotalSupply: 50}}
	if !snap.SoldOut() || !snap.CollectionEnabled() {
		t.Fatalf("expected sold out with collection enabled")
	}
	snap.State = StateMinting
	if snap.CollectionEnabled() {
		t.Fatalf("collection must be disabled while loading")
	}
	snap = Snapshot{State: StateIdle}
	if snap.CollectionEnabled() {
		t.Fatalf("collection must be disabled with nothing minted")
	}
}
