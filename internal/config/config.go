// Package config loads runtime configuration from a YAML file and
// NSC_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Authority AuthorityConfig `mapstructure:"authority"`
	Server    ServerConfig    `mapstructure:"server"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// ClickHouseDSN enables the event log; the database is taken from its path.
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// Oracle kinds.
const (
	OracleStub = "stub"
	OracleRPC  = "rpc"
	OracleWS   = "ws"
)

type OracleConfig struct {
	Kind       string        `mapstructure:"kind"`
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxAge     time.Duration `mapstructure:"max_age"`

	// Rates are static quotes keyed "FROM/TO", used by the stub oracle.
	Rates map[string]string `mapstructure:"rates"`

	// Pairs are "FROM/TO" keys the websocket feed subscribes to.
	Pairs []string `mapstructure:"pairs"`
}

type AuthorityConfig struct {
	Address            string `mapstructure:"address"`
	Operator           string `mapstructure:"operator"`
	SettlementAsset    string `mapstructure:"settlement_asset"`
	SettlementDecimals int32  `mapstructure:"settlement_decimals"`
	Exchange           string `mapstructure:"exchange"`
	PayoffPolicy       string `mapstructure:"payoff_policy"`
	RedemptionRule     string `mapstructure:"redemption_rule"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

// AuditConfig schedules the invariant audit run by the server.
type AuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration from path. With envOnly the file is skipped and
// only defaults and environment variables apply.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NSC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("oracle.kind", OracleStub)
	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.retry_delay", "500ms")
	v.SetDefault("oracle.max_age", "1m")
	v.SetDefault("authority.address", "")
	v.SetDefault("authority.operator", "")
	v.SetDefault("authority.settlement_asset", "")
	v.SetDefault("authority.settlement_decimals", 0)
	v.SetDefault("authority.exchange", "")
	v.SetDefault("authority.payoff_policy", "physical-delivery")
	v.SetDefault("authority.redemption_rule", "holder")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.schedule", "@every 1m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Oracle.Kind {
	case OracleStub:
	case OracleRPC, OracleWS:
		if c.Oracle.Endpoint == "" {
			return fmt.Errorf("oracle.endpoint is required for the %s oracle", c.Oracle.Kind)
		}
	default:
		return fmt.Errorf("unknown oracle.kind %q", c.Oracle.Kind)
	}

	if c.Audit.Enabled && c.Audit.Schedule == "" {
		return fmt.Errorf("audit.schedule is required when audit is enabled")
	}

	if c.Authority.SettlementDecimals < 0 {
		return fmt.Errorf("authority.settlement_decimals must be non-negative")
	}
	return nil
}
