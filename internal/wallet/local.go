package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"senseimint/internal/grants"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Local is a single-key wallet. Authorizations are remembered in a grants.Store,
// so an account approved once is reported by AuthorizedAccounts on later runs.
type Local struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	chain    ChainReader
	grants   grants.Store
	approve  Approver
	grantTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

type LocalConfig struct {
	Key      *ecdsa.PrivateKey
	Chain    ChainReader
	Grants   grants.Store
	Approver Approver      // nil approves every request
	GrantTTL time.Duration // zero keeps grants forever
	Logger   zerolog.Logger
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("wallet key is required")
	}
	if cfg.Chain == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	store := cfg.Grants
	if store == nil {
		store = grants.NewMemoryStore()
	}
	return &Local{
		key:      cfg.Key,
		address:  crypto.PubkeyToAddress(cfg.Key.PublicKey),
		chain:    cfg.Chain,
		grants:   store,
		approve:  cfg.Approver,
		grantTTL: cfg.GrantTTL,
		now:      time.Now,
		log:      cfg.Logger.With().Str("component", "wallet").Logger(),
	}, nil
}

func (w *Local) Address() common.Address {
	return w.address
}

func (w *Local) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if ok, err := w.authorized(ctx); err != nil {
		return nil, err
	} else if ok {
		return []common.Address{w.address}, nil
	}

	if w.approve != nil {
		approved, err := w.approve(ctx, w.address)
		if err != nil {
			return nil, fmt.Errorf("approve account: %w", err)
		}
		if !approved {
			w.log.Info().Str("account", w.address.Hex()).Msg("account request declined")
			return nil, ErrRequestRejected
		}
	}

	now := w.now()
	record := grants.Record{Account: w.address.Hex(), GrantedAt: now}
	if w.grantTTL > 0 {
		record.ExpiresAt = now.Add(w.grantTTL)
	}
	if err := w.grants.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save grant: %w", err)
	}
	w.log.Info().Str("account", w.address.Hex()).Msg("account authorized")
	return []common.Address{w.address}, nil
}

func (w *Local) AuthorizedAccounts(ctx context.Context) ([]common.Address, error) {
	ok, err := w.authorized(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []common.Address{}, nil
	}
	return []common.Address{w.address}, nil
}

func (w *Local) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := w.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return id, nil
}

func (w *Local) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	ok, err := w.authorized(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	chainID, err := w.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = 0 // let node estimate
	return opts, nil
}

// Revoke forgets the authorization for this wallet's account.
func (w *Local) Revoke(ctx context.Context) error {
	return w.grants.Delete(ctx, w.address.Hex())
}

func (w *Local) authorized(ctx context.Context) (bool, error) {
	rec, err := w.grants.Get(ctx, w.address.Hex())
	if err != nil {
		return false, fmt.Errorf("load grant: %w", err)
	}
	return rec != nil, nil
}

// KeyFromHex parses a hex private key, with or without 0x prefix.
func KeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// KeyFromKeystore decrypts an encrypted JSON key file.
func KeyFromKeystore(path, passphrase string) (*ecdsa.PrivateKey, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(blob, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}
