package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Deployer  string `json:"deployer"`
	Contracts struct {
		SenseiNFT string `json:"SenseiNFT"`
	} `json:"contracts"`
}

// SiteConfig models site.toml: the static constants shown by the client.
type SiteConfig struct {
	Title         string `toml:"title"`
	Subtitle      string `toml:"subtitle"`
	TotalSupply   uint64 `toml:"total_supply"`
	GalleryLink   string `toml:"gallery_link"`
	Collection    string `toml:"collection"`
	TwitterHandle string `toml:"twitter_handle"`
}

// TwitterLink is the profile URL for the configured handle.
func (s SiteConfig) TwitterLink() string {
	return "https://twitter.com/" + s.TwitterHandle
}

// AppConfig ties together deployment, site and environment values.
type AppConfig struct {
	Deployment DeploymentConfig
	Site       SiteConfig
	Chain      ChainConfig
	Wallet     WalletConfig
	Service    ServiceConfig
	Log        LogConfig
}

type ChainConfig struct {
	RPCURL              string
	MintConfirmTimeout  time.Duration
	ReceiptPollInterval time.Duration
}

type WalletConfig struct {
	PrivateKey         string
	KeystorePath       string
	KeystorePassphrase string
	GrantStorePath     string
	GrantStoreDSN      string
}

// Configured reports whether any key source is set.
func (w WalletConfig) Configured() bool {
	return w.PrivateKey != "" || w.KeystorePath != ""
}

type ServiceConfig struct {
	DiagnosticsAddr string
}

type LogConfig struct {
	Level string
	File  string
}

const (
	defaultDeploymentsPath = "./deployments.json"
	defaultSiteConfigPath  = "./site.toml"
	defaultRPCURL          = "ws://127.0.0.1:8546"
)

var ErrMissingContract = errors.New("SenseiNFT contract address is not configured")

// DefaultSite returns the built-in site constants used when site.toml is absent.
func DefaultSite() SiteConfig {
	return SiteConfig{
		Title:         "Evans' NFT Collection",
		Subtitle:      "Each unique. Each beautiful. Discover your NFT today.",
		TotalSupply:   50,
		GalleryLink:   "https://testnets.opensea.io",
		Collection:    "senseinft",
		TwitterHandle: "_buildspace",
	}
}

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)
	sitePath := envOr("SITE_CONFIG_PATH", defaultSiteConfigPath)

	deployCfg, err := loadDeployments(deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	if v := envOr("SENSEI_CONTRACT_ADDRESS", ""); v != "" {
		deployCfg.Contracts.SenseiNFT = v
	}
	if v := envOrInt("CHAIN_ID", 0); v != 0 {
		deployCfg.ChainID = int64(v)
	}
	if deployCfg.Contracts.SenseiNFT == "" {
		return nil, ErrMissingContract
	}
	if !common.IsHexAddress(deployCfg.Contracts.SenseiNFT) {
		return nil, fmt.Errorf("invalid SenseiNFT address %q", deployCfg.Contracts.SenseiNFT)
	}

	siteCfg, err := loadSite(sitePath)
	if err != nil {
		return nil, fmt.Errorf("load site config: %w", err)
	}

	chainCfg := ChainConfig{
		RPCURL:              envOr("CHAIN_RPC_URL", defaultRPCURL),
		MintConfirmTimeout:  time.Duration(envOrInt("MINT_CONFIRM_TIMEOUT", 0)) * time.Second,
		ReceiptPollInterval: time.Duration(envOrInt("RECEIPT_POLL_MS", 2000)) * time.Millisecond,
	}

	walletCfg := WalletConfig{
		PrivateKey:         envOr("CHAIN_PRIVATE_KEY", ""),
		KeystorePath:       envOr("KEYSTORE_PATH", ""),
		KeystorePassphrase: envOr("KEYSTORE_PASSPHRASE", ""),
		GrantStorePath:     envOr("GRANT_STORE_PATH", filepath.Join(os.TempDir(), "senseimint-grants.json")),
		GrantStoreDSN:      envOr("GRANT_STORE_DSN", ""),
	}

	return &AppConfig{
		Deployment: *deployCfg,
		Site:       siteCfg,
		Chain:      chainCfg,
		Wallet:     walletCfg,
		Service: ServiceConfig{
			DiagnosticsAddr: envOr("DIAGNOSTICS_ADDR", ""),
		},
		Log: LogConfig{
			Level: envOr("SENSEI_LOG_LEVEL", "info"),
			File:  envOr("SENSEI_LOG_FILE", filepath.Join(os.TempDir(), "senseimint.log")),
		},
	}, nil
}

// ChainID returns the required network identifier.
func (c *AppConfig) ChainID() *big.Int {
	return big.NewInt(c.Deployment.ChainID)
}

// ContractAddress returns the configured SenseiNFT address as written in deployments.json.
func (c *AppConfig) ContractAddress() string {
	return c.Deployment.Contracts.SenseiNFT
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &DeploymentConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadSite(path string) (SiteConfig, error) {
	cfg := DefaultSite()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return cfg, err
	}
	cfg.GalleryLink = strings.TrimRight(cfg.GalleryLink, "/")
	return cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
