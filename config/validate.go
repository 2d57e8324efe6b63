package config

import "fmt"

// Validate sanity-checks a Config before the indexer starts.
func Validate(cfg *Config) error {
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("unknown network %q", cfg.Network)
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	if cfg.RPC.URL == "" {
		return fmt.Errorf("rpc.url must be set")
	}
	if cfg.RPC.CookieFile == "" && (cfg.RPC.User == "" || cfg.RPC.Password == "") {
		return fmt.Errorf("rpc: either cookiefile or both user and password must be set")
	}

	if cfg.Index.CommitInterval <= 0 {
		return fmt.Errorf("index.commitinterval must be positive, got %d", cfg.Index.CommitInterval)
	}
	if cfg.Index.CommitInterval > 200 {
		return fmt.Errorf("index.commitinterval must not exceed 200 blocks per write transaction, got %d", cfg.Index.CommitInterval)
	}
	if cfg.Index.ReorgMaxDepth <= 0 {
		return fmt.Errorf("index.reorgmaxdepth must be positive, got %d", cfg.Index.ReorgMaxDepth)
	}

	if cfg.API.Enabled {
		if cfg.API.Addr == "" {
			return fmt.Errorf("api.addr must be set when the API is enabled")
		}
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return fmt.Errorf("api.port out of range: %d", cfg.API.Port)
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", cfg.Log.Level)
	}

	return nil
}
