package config

import (
	"time"

	"github.com/cryptomart/indexer/internal/infra/notify"
	"github.com/cryptomart/indexer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Chain    ChainConfig     `yaml:"chain"`
	Database postgres.Config `yaml:"database"`
	Redis    notify.Config   `yaml:"redis"`
	Logging  LoggingConfig   `yaml:"logging"`
	Health   HealthConfig    `yaml:"health"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// HealthConfig holds staleness settings.
type HealthConfig struct {
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

// ChainConfig holds settings for the chain log source and the poller.
type ChainConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	ContractAddress string        `yaml:"contract_address"`
	EventSignature  string        `yaml:"event_signature"`
	Confirmations   uint64        `yaml:"confirmations"`
	ScanInterval    time.Duration `yaml:"scan_interval"`
	MaxBlockRange   uint64        `yaml:"max_block_range"`
	StartWindow     uint64        `yaml:"start_window"`
}
