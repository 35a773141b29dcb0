// Package wallet provides the account and signing capability the session
// controller is given, in place of a browser-injected wallet.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRequestRejected is returned when the user declines an account request.
	ErrRequestRejected = errors.New("account request rejected by user")
	// ErrUnauthorized is returned when signing is requested before any account was authorized.
	ErrUnauthorized = errors.New("no authorized account")
)

// Provider grants access to accounts, the active network and transaction signing.
type Provider interface {
	// RequestAccounts asks the user to authorize accounts; it may prompt interactively.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// AuthorizedAccounts lists accounts authorized earlier, without prompting.
	AuthorizedAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	// Transactor returns signing options for the active account.
	Transactor(ctx context.Context) (*bind.TransactOpts, error)
}

// ChainReader reports the network the wallet is attached to. *ethclient.Client satisfies it.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Approver confirms an account request with the user.
type Approver func(ctx context.Context, account common.Address) (bool, error)
