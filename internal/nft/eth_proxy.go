package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"senseimint/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
)

// EthProxy talks to a deployed SenseiNFT through an RPC node.
type EthProxy struct {
	client       *ethclient.Client
	receipts     ReceiptReader
	contract     *bind.BoundContract
	abi          abi.ABI
	address      common.Address
	pollInterval time.Duration
}

type EthProxyConfig struct {
	RPCURL              string
	ContractAddress     string
	ReceiptPollInterval time.Duration
}

func NewEthProxy(ctx context.Context, cfg EthProxyConfig) (*EthProxy, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid SenseiNFT address %q", cfg.ContractAddress)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	p, err := newEthProxy(common.HexToAddress(cfg.ContractAddress), cli, cli, cfg.ReceiptPollInterval)
	if err != nil {
		cli.Close()
		return nil, err
	}
	p.client = cli
	return p, nil
}

func newEthProxy(address common.Address, backend bind.ContractBackend, receipts ReceiptReader, poll time.Duration) (*EthProxy, error) {
	parsedABI, err := abi.JSON(strings.NewReader(contracts.SenseiNFTABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &EthProxy{
		receipts:     receipts,
		contract:     bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		abi:          parsedABI,
		address:      address,
		pollInterval: poll,
	}, nil
}

// Client exposes the underlying RPC client so the wallet can share the connection.
func (p *EthProxy) Client() *ethclient.Client {
	return p.client
}

func (p *EthProxy) Address() common.Address {
	return p.address
}

func (p *EthProxy) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *EthProxy) MakeSenseiNFT(opts *bind.TransactOpts) (*types.Transaction, error) {
	if opts == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	tx, err := p.contract.Transact(opts, contracts.MethodMakeSenseiNFT)
	if err != nil {
		return nil, fmt.Errorf("make sensei nft tx: %w", err)
	}
	return tx, nil
}

func (p *EthProxy) GetTotalNFTS(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, contracts.MethodGetTotalNFTS); err != nil {
		return nil, fmt.Errorf("get total nfts: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("get total nfts: unexpected output length %d", len(out))
	}
	total, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("get total nfts: unexpected output type %T", out[0])
	}
	return total, nil
}

func (p *EthProxy) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if p.receipts == nil {
		return nil, fmt.Errorf("receipt reader not configured")
	}
	return WaitForReceipt(ctx, p.receipts, tx, p.pollInterval)
}

func (p *EthProxy) WatchTotalNFTMinted(ctx context.Context, sink chan<- *TotalNFTMinted) (event.Subscription, error) {
	logs, sub, err := p.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, contracts.EventTotalNFTMinted)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", contracts.EventTotalNFTMinted, err)
	}
	return pump(sub, logs, func(log types.Log) error {
		ev := new(TotalNFTMinted)
		if err := p.contract.UnpackLog(ev, contracts.EventTotalNFTMinted, log); err != nil {
			return err
		}
		ev.Raw = log
		select {
		case sink <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), nil
}

func (p *EthProxy) WatchNewSenseiNFTMinted(ctx context.Context, sink chan<- *NewSenseiNFTMinted) (event.Subscription, error) {
	logs, sub, err := p.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, contracts.EventNewSenseiNFTMinted)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", contracts.EventNewSenseiNFTMinted, err)
	}
	return pump(sub, logs, func(log types.Log) error {
		ev := new(NewSenseiNFTMinted)
		if err := p.contract.UnpackLog(ev, contracts.EventNewSenseiNFTMinted, log); err != nil {
			return err
		}
		ev.Raw = log
		select {
		case sink <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), nil
}

// pump decodes raw logs into a typed sink until the upstream subscription ends.
func pump(sub event.Subscription, logs <-chan types.Log, deliver func(types.Log) error) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				if err := deliver(log); err != nil {
					return err
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

func (p *EthProxy) Ping(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := p.client.BlockNumber(ctx)
	return err
}

// ReceiptReader is the slice of ethclient.Client used to poll for receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client ReceiptReader, tx *types.Transaction, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
