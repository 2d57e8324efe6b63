// Package config handles indexer configuration.
//
// Configuration is split into two categories:
//   - Chain settings: which Bitcoin network, at which node, from which height
//   - Node settings: data directory, commit batching, reorg tolerance, the
//     read API, and logging
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies the Bitcoin network the indexer is tracking.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// FirstInscriptionHeight returns the height ordinals theory first allows an
// inscription to appear on this network; below it the Block Fetcher only
// needs headers (SPEC_FULL.md §4.2) unless the sat index is enabled.
func (n NetworkType) FirstInscriptionHeight() uint64 {
	switch n {
	case Testnet:
		return 2_413_343
	case Regtest:
		return 0
	default:
		return 767_430
	}
}

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds the indexer's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Bitcoin node RPC connection
	RPC BitcoinRPCConfig

	// Indexing behavior
	Index IndexConfig

	// Read API
	API APIConfig

	// Logging
	Log LogConfig
}

// BitcoinRPCConfig holds the connection settings for the upstream Bitcoin
// node RPC (SPEC_FULL.md §4.10).
type BitcoinRPCConfig struct {
	URL        string `conf:"rpc.url"`
	User       string `conf:"rpc.user"`
	Password   string `conf:"rpc.password"`
	CookieFile string `conf:"rpc.cookiefile"`
}

// IndexConfig holds the indexing pipeline's own operational settings.
type IndexConfig struct {
	// SatIndex enables the sat tracker (§4.4); without it, sat-range and
	// rare-sat tables stay empty and the fetcher only pulls full blocks
	// from FirstInscriptionHeight onward.
	SatIndex bool `conf:"index.sats"`

	// HeightLimit stops the fetcher at this height (0 = unbounded);
	// mainly for tests and bounded backfills.
	HeightLimit uint64 `conf:"index.heightlimit"`

	// CommitInterval is the number of blocks held in one write
	// transaction before a commit + savepoint (§3: "1..=200 blocks").
	CommitInterval int `conf:"index.commitinterval"`

	// ReorgMaxDepth bounds how far back the reorg detector will scan for
	// a common ancestor before declaring the reorg unrecoverable (§4.8).
	ReorgMaxDepth int `conf:"index.reorgmaxdepth"`

	// FirstInscriptionHeight overrides NetworkType's default, if set.
	FirstInscriptionHeight uint64 `conf:"index.firstinscriptionheight"`
}

// APIConfig holds the read-only JSON API server settings.
type APIConfig struct {
	Enabled bool   `conf:"api.enabled"`
	Addr    string `conf:"api.addr"`
	Port    int    `conf:"api.port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.brc20sd
//	macOS:   ~/Library/Application Support/Brc20sd
//	Windows: %APPDATA%\Brc20sd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brc20sd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Brc20sd")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Brc20sd")
		}
		return filepath.Join(home, "AppData", "Roaming", "Brc20sd")
	default:
		return filepath.Join(home, ".brc20sd")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// IndexDir returns the Badger database directory.
func (c *Config) IndexDir() string {
	return filepath.Join(c.ChainDataDir(), "index")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "brc20sd.conf")
}

// FirstInscriptionHeight resolves the configured or network-default first
// inscription height.
func (c *Config) FirstInscriptionHeight() uint64 {
	if c.Index.FirstInscriptionHeight != 0 {
		return c.Index.FirstInscriptionHeight
	}
	return c.Network.FirstInscriptionHeight()
}
