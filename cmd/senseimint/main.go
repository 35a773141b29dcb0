package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"senseimint/internal/config"
	"senseimint/internal/grants"
	"senseimint/internal/nft"
	"senseimint/internal/observability"
	"senseimint/internal/server"
	"senseimint/internal/session"
	"senseimint/internal/tui"
	"senseimint/internal/wallet"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "senseimint: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, logCloser, err := observability.InitLogger("senseimint", cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	store, closeStore, err := openGrantStore(ctx, cfg.Wallet)
	if err != nil {
		return fmt.Errorf("grant store error: %w", err)
	}
	defer closeStore()

	opts := session.Options{
		ChainID: cfg.ChainID(),
		Links: nft.Links{
			GalleryBase: cfg.Site.GalleryLink,
			Contract:    cfg.ContractAddress(),
			Collection:  cfg.Site.Collection,
		},
		TotalSupply:    cfg.Site.TotalSupply,
		ConfirmTimeout: cfg.Chain.MintConfirmTimeout,
		Logger:         logger,
		Metrics:        metrics,
	}

	// Without a key the controller runs with no wallet and reports it as unavailable.
	var proxy *nft.EthProxy
	if cfg.Wallet.Configured() {
		proxy, err = nft.NewEthProxy(ctx, nft.EthProxyConfig{
			RPCURL:              cfg.Chain.RPCURL,
			ContractAddress:     cfg.ContractAddress(),
			ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
		})
		if err != nil {
			return fmt.Errorf("contract proxy error: %w", err)
		}
		defer proxy.Close()

		key, err := loadKey(cfg.Wallet)
		if err != nil {
			return fmt.Errorf("wallet key error: %w", err)
		}
		local, err := wallet.NewLocal(wallet.LocalConfig{
			Key:    key,
			Chain:  proxy.Client(),
			Grants: store,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("wallet error: %w", err)
		}
		opts.Wallet = local
		opts.Contract = proxy
		logger.Info().Str("account", local.Address().Hex()).Msg("wallet loaded")
	} else {
		logger.Warn().Msg("no wallet key configured")
	}

	ctrl := session.NewController(opts)
	defer ctrl.Close()

	if cfg.Service.DiagnosticsAddr != "" {
		srvCfg := server.Config{
			Addr:     cfg.Service.DiagnosticsAddr,
			Sessions: ctrl,
			Metrics:  metrics.Handler(),
			Grants:   store,
			Logger:   logger,
		}
		if proxy != nil {
			srvCfg.Contract = proxy
		}
		diag := server.NewServer(srvCfg)
		go func() {
			if err := diag.Start(); err != nil {
				logger.Error().Err(err).Msg("diagnostics stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = diag.Shutdown(shutdownCtx)
		}()
	}

	program := tea.NewProgram(tui.NewModel(ctx, ctrl, cfg.Site), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("view error: %w", err)
	}
	logger.Info().Msg("shutting down")
	return nil
}

func openGrantStore(ctx context.Context, cfg config.WalletConfig) (grants.Store, func(), error) {
	if cfg.GrantStoreDSN != "" {
		pg, err := grants.NewPostgresStore(ctx, cfg.GrantStoreDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	fs, err := grants.NewFileStore(cfg.GrantStorePath)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

func loadKey(cfg config.WalletConfig) (*ecdsa.PrivateKey, error) {
	if cfg.KeystorePath != "" {
		return wallet.KeyFromKeystore(cfg.KeystorePath, cfg.KeystorePassphrase)
	}
	return wallet.KeyFromHex(cfg.PrivateKey)
}
