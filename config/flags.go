package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Bitcoin RPC
	RPCURL      string
	RPCUser     string
	RPCPassword string
	RPCCookie   string

	// Indexing
	SatIndex    bool
	HeightLimit uint64

	// Read API
	API     bool
	APIAddr string
	APIPort int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetSatIndex bool
	SetAPI      bool
	SetLogJSON  bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("brc20sd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet, regtest)")
	fs.BoolFunc("testnet", "Use testnet (shorthand for --network=testnet)", func(string) error { return nil })
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Bitcoin RPC
	fs.StringVar(&f.RPCURL, "rpc-url", "", "Bitcoin node RPC URL")
	fs.StringVar(&f.RPCUser, "rpc-user", "", "Bitcoin node RPC username")
	fs.StringVar(&f.RPCPassword, "rpc-password", "", "Bitcoin node RPC password")
	fs.StringVar(&f.RPCCookie, "rpc-cookiefile", "", "Bitcoin node RPC cookie file path")

	// Indexing
	fs.BoolVar(&f.SatIndex, "index-sats", false, "Track individual sat locations")
	fs.Uint64Var(&f.HeightLimit, "height-limit", 0, "Stop indexing at this height (0 = follow tip)")

	// Read API
	fs.BoolVar(&f.API, "api", true, "Enable the read-only JSON API server")
	fs.StringVar(&f.APIAddr, "api-addr", "", "Read API listen address")
	fs.IntVar(&f.APIPort, "api-port", 0, "Read API listen port")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		printUsage()
	}

	// Parse
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Handle --testnet shorthand
	if isFlagSet(fs, "testnet") {
		f.Network = "testnet"
	}
	f.SetSatIndex = isFlagSet(fs, "index-sats")
	f.SetAPI = isFlagSet(fs, "api")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Bitcoin RPC
	if f.RPCURL != "" {
		cfg.RPC.URL = f.RPCURL
	}
	if f.RPCUser != "" {
		cfg.RPC.User = f.RPCUser
	}
	if f.RPCPassword != "" {
		cfg.RPC.Password = f.RPCPassword
	}
	if f.RPCCookie != "" {
		cfg.RPC.CookieFile = f.RPCCookie
	}

	// Indexing
	if f.SetSatIndex {
		cfg.Index.SatIndex = f.SatIndex
	}
	if f.HeightLimit != 0 {
		cfg.Index.HeightLimit = f.HeightLimit
	}

	// Read API
	if f.SetAPI {
		cfg.API.Enabled = f.API
	}
	if f.APIAddr != "" {
		cfg.API.Addr = f.APIAddr
	}
	if f.APIPort != 0 {
		cfg.API.Port = f.APIPort
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `brc20sd - ordinals / BRC-20 / BRC-20-S indexer

Usage:
  brc20sd [options]
  brc20sd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default), testnet, or regtest
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.brc20sd)
  --config, -c    Config file path (default: <datadir>/brc20sd.conf)

Bitcoin RPC Options:
  --rpc-url           Bitcoin node RPC URL
  --rpc-user          RPC username
  --rpc-password      RPC password
  --rpc-cookiefile    RPC cookie file (alternative to user/password)

Indexing Options:
  --index-sats     Track individual sat locations
  --height-limit   Stop indexing at this height (0 = follow tip)

Read API Options:
  --api            Enable the read-only JSON API server (default: true)
  --api-addr       Listen address (default: 127.0.0.1)
  --api-port       Listen port

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/brc20sd.log; logs also go to stdout)
  --log-json      Output logs as JSON

Examples:
  # Connect to a local mainnet node
  brc20sd --rpc-url=http://127.0.0.1:8332 --rpc-user=bitcoinrpc --rpc-password=secret

  # Track sat ranges on testnet
  brc20sd --network=testnet --index-sats

  # Custom data directory
  brc20sd --datadir=/path/to/data
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("brc20sd version 0.1.0")
		os.Exit(0)
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	switch strings.ToLower(flags.Network) {
	case "testnet":
		network = Testnet
	case "regtest":
		network = Regtest
	}

	// Start with defaults
	cfg := Default(network)

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. This is idempotent — safe to call on
// every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.IndexDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
