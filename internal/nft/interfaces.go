// Package nft binds the SenseiNFT contract: mint submission, the total
// counter, and the two events the client follows.
package nft

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Proxy abstracts the on-chain SenseiNFT interaction.
type Proxy interface {
	// MakeSenseiNFT submits a mint signed by opts. The caller waits for confirmation separately.
	MakeSenseiNFT(opts *bind.TransactOpts) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	GetTotalNFTS(ctx context.Context) (*big.Int, error)
	WatchTotalNFTMinted(ctx context.Context, sink chan<- *TotalNFTMinted) (event.Subscription, error)
	WatchNewSenseiNFTMinted(ctx context.Context, sink chan<- *NewSenseiNFTMinted) (event.Subscription, error)
}

// HealthChecker is implemented by proxies that can reach their RPC node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// TotalNFTMinted is emitted with the authoritative running total after each mint.
type TotalNFTMinted struct {
	TotalNfts *big.Int
	Raw       types.Log
}

// NewSenseiNFTMinted is emitted for every mint, by anyone.
type NewSenseiNFTMinted struct {
	Sender  common.Address
	TokenId *big.Int
	Raw     types.Log
}
