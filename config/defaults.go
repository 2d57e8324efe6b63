package config

// DefaultMainnet returns the default indexer configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: BitcoinRPCConfig{
			URL: "http://127.0.0.1:8332",
		},
		Index: IndexConfig{
			SatIndex:       false,
			CommitInterval: 200,
			ReorgMaxDepth:  21,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1",
			Port:    8080,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default indexer configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.URL = "http://127.0.0.1:18332"
	cfg.API.Port = 8081
	return cfg
}

// DefaultRegtest returns the default indexer configuration for regtest.
func DefaultRegtest() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Regtest
	cfg.RPC.URL = "http://127.0.0.1:18443"
	cfg.Index.ReorgMaxDepth = 6
	cfg.API.Port = 8082
	return cfg
}

// Default returns the default indexer configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
