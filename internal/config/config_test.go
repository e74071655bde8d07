package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, OracleStub, cfg.Oracle.Kind)
	assert.Equal(t, time.Minute, cfg.Oracle.MaxAge)
	assert.Equal(t, int32(0), cfg.Authority.SettlementDecimals)
	assert.Equal(t, "physical-delivery", cfg.Authority.PayoffPolicy)
	assert.Equal(t, "holder", cfg.Authority.RedemptionRule)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "@every 1m", cfg.Audit.Schedule)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  encoding: json
oracle:
  kind: rpc
  endpoint: http://localhost:9000
  timeout: 2s
  rates:
    EOS/ETH: "12"
authority:
  settlement_decimals: 4
  redemption_rule: owner-for-beneficiary
`)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, OracleRPC, cfg.Oracle.Kind)
	assert.Equal(t, 2*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, "12", cfg.Oracle.Rates["eos/eth"])
	assert.Equal(t, int32(4), cfg.Authority.SettlementDecimals)
	assert.Equal(t, "owner-for-beneficiary", cfg.Authority.RedemptionRule)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NSC_SERVER_HTTP_ADDR", ":9999")
	t.Setenv("NSC_AUTHORITY_SETTLEMENT_DECIMALS", "6")

	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.Equal(t, int32(6), cfg.Authority.SettlementDecimals)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage: StorageConfig{Backend: BackendMemory},
			Oracle:  OracleConfig{Kind: OracleStub},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, true},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresDSN = "postgres://localhost/nsc"
		}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"ws without endpoint", func(c *Config) { c.Oracle.Kind = OracleWS }, true},
		{"unknown oracle", func(c *Config) { c.Oracle.Kind = "chainlink" }, true},
		{"negative decimals", func(c *Config) { c.Authority.SettlementDecimals = -1 }, true},
		{"audit without schedule", func(c *Config) { c.Audit.Enabled = true }, true},
		{"audit with schedule", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Schedule = "@every 30s"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
