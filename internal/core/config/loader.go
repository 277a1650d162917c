package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Chain.RPCURL == "" {
		return nil, fmt.Errorf("chain.rpc_url is required")
	}
	if cfg.Chain.ContractAddress == "" {
		return nil, fmt.Errorf("chain.contract_address is required")
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Chain.ScanInterval == 0 {
		cfg.Chain.ScanInterval = 10 * time.Second
	}
	if cfg.Chain.Confirmations == 0 {
		cfg.Chain.Confirmations = 12
	}
	if cfg.Chain.MaxBlockRange == 0 {
		cfg.Chain.MaxBlockRange = 2000
	}
	if cfg.Chain.StartWindow == 0 {
		cfg.Chain.StartWindow = 5000
	}
	if cfg.Chain.RPCTimeout == 0 {
		cfg.Chain.RPCTimeout = 30 * time.Second
	}
	if cfg.Chain.RetryAttempts == 0 {
		cfg.Chain.RetryAttempts = 3
	}
	if cfg.Chain.RetryBaseDelay == 0 {
		cfg.Chain.RetryBaseDelay = time.Second
	}
	if cfg.Chain.EventSignature == "" {
		cfg.Chain.EventSignature = "PurchaseCompleted(uint256,address,uint256)"
	}
	if cfg.Health.StalenessThreshold == 0 {
		cfg.Health.StalenessThreshold = 5 * time.Minute
	}
}
