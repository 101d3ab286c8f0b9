package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const testModuleAddress = "0xdA7dE2ECdDfccC6c3AF10108Db212ACBBf9EA83F"

// validConfig returns a config that passes validation
func validConfig() *Config {
	cfg := NewConfig()
	cfg.Ethereum.WSEndpoint = "wss://localhost:8546"
	cfg.Ethereum.ModuleAddress = testModuleAddress
	return cfg
}

// TestNewConfig tests creating a config with defaults
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("NewConfig() returned nil")
	}

	// Check defaults
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected default log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Backfill.BatchSize != 10000 {
		t.Errorf("Expected default batch size 10000, got %d", cfg.Backfill.BatchSize)
	}
	if cfg.Backfill.Burst != 1 {
		t.Errorf("Expected default burst 1, got %d", cfg.Backfill.Burst)
	}
	if cfg.IPFS.Gateway == "" {
		t.Error("Expected a default IPFS gateway")
	}
	if cfg.Monitor.StallInterval != 30*time.Minute {
		t.Errorf("Expected default stall interval 30m, got %v", cfg.Monitor.StallInterval)
	}
	if cfg.Database.Path != ".storage" {
		t.Errorf("Expected default database path '.storage', got %q", cfg.Database.Path)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing websocket endpoint",
			mutate:  func(c *Config) { c.Ethereum.WSEndpoint = "" },
			wantErr: true,
			errMsg:  "websocket endpoint is required",
		},
		{
			name:    "missing module address",
			mutate:  func(c *Config) { c.Ethereum.ModuleAddress = "" },
			wantErr: true,
			errMsg:  "module address is required",
		},
		{
			name:    "malformed module address",
			mutate:  func(c *Config) { c.Ethereum.ModuleAddress = "not-an-address" },
			wantErr: true,
			errMsg:  "invalid module address",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
			errMsg:  "database path is required",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Log.Format = "text" },
			wantErr: true,
			errMsg:  "invalid log format",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Backfill.BatchSize = 0 },
			wantErr: true,
			errMsg:  "backfill batch size must be positive",
		},
		{
			name:    "negative backfill rate",
			mutate:  func(c *Config) { c.Backfill.RequestsPerSecond = -1 },
			wantErr: true,
			errMsg:  "backfill rate must be positive",
		},
		{
			name:    "zero stall interval",
			mutate:  func(c *Config) { c.Monitor.StallInterval = -time.Minute },
			wantErr: true,
			errMsg:  "stall interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

// TestLoadFromFile tests loading configuration from a YAML file
func TestLoadFromFile(t *testing.T) {
	content := `
ethereum:
  ws_endpoint: wss://mainnet.example/ws
  module_address: "` + testModuleAddress + `"
telegram:
  admin_chat_ids: [12345, 678]
backfill:
  batch_size: 5000
  requests_per_second: 2
  start_block: 2000000
links:
  etherscan_url: https://hoodi.etherscan.io
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := &Config{}
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Ethereum.WSEndpoint != "wss://mainnet.example/ws" {
		t.Errorf("WSEndpoint = %q", cfg.Ethereum.WSEndpoint)
	}
	if !reflect.DeepEqual(cfg.Telegram.AdminChatIDs, []int64{12345, 678}) {
		t.Errorf("AdminChatIDs = %v, want [12345 678]", cfg.Telegram.AdminChatIDs)
	}
	if cfg.Backfill.BatchSize != 5000 {
		t.Errorf("BatchSize = %d, want 5000", cfg.Backfill.BatchSize)
	}
	if cfg.Backfill.StartBlock != 2000000 {
		t.Errorf("StartBlock = %d, want 2000000", cfg.Backfill.StartBlock)
	}
	if cfg.Links.EtherscanURL != "https://hoodi.etherscan.io" {
		t.Errorf("EtherscanURL = %q", cfg.Links.EtherscanURL)
	}
}

// TestLoadFromFileMissing tests loading from a nonexistent file
func TestLoadFromFileMissing(t *testing.T) {
	cfg := &Config{}
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFromFile() expected error for missing file")
	}
}

// TestLoadFromEnv tests environment variable overrides
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SENTINEL_WS_ENDPOINT", "wss://env.example/ws")
	t.Setenv("SENTINEL_MODULE_ADDRESS", testModuleAddress)
	t.Setenv("SENTINEL_ADMIN_CHAT_IDS", "-100987, 42")
	t.Setenv("SENTINEL_BACKFILL_RPS", "2.5")
	t.Setenv("SENTINEL_BACKFILL_START_BLOCK", "123456")
	t.Setenv("SENTINEL_OPS_ENABLED", "true")

	cfg := &Config{}
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Ethereum.WSEndpoint != "wss://env.example/ws" {
		t.Errorf("WSEndpoint = %q", cfg.Ethereum.WSEndpoint)
	}
	if !reflect.DeepEqual(cfg.Telegram.AdminChatIDs, []int64{-100987, 42}) {
		t.Errorf("AdminChatIDs = %v, want [-100987 42]", cfg.Telegram.AdminChatIDs)
	}
	if cfg.Backfill.StartBlock != 123456 {
		t.Errorf("StartBlock = %d, want 123456", cfg.Backfill.StartBlock)
	}
	if cfg.Backfill.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", cfg.Backfill.RequestsPerSecond)
	}
	if !cfg.Ops.Enabled {
		t.Error("Ops.Enabled = false, want true")
	}
}

// TestLoadFromEnvInvalid tests malformed environment values
func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("SENTINEL_BACKFILL_START_BLOCK", "not-a-number")

	cfg := &Config{}
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("LoadFromEnv() expected error for malformed start block")
	}
}

// TestParseAdminChatIDs tests the lenient admin chat id list parser
func TestParseAdminChatIDs(t *testing.T) {
	tests := []struct {
		raw  string
		want []int64
	}{
		{"", nil},
		{"1,2,3", []int64{1, 2, 3}},
		{"1 2  3", []int64{1, 2, 3}},
		{"1, -100987,garbage, 1", []int64{1, -100987}},
		{"abc", nil},
	}
	for _, tt := range tests {
		if got := ParseAdminChatIDs(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseAdminChatIDs(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// TestLoad tests the full load pipeline with env overriding file
func TestLoad(t *testing.T) {
	content := `
ethereum:
  ws_endpoint: wss://file.example/ws
  module_address: "` + testModuleAddress + `"
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("SENTINEL_WS_ENDPOINT", "wss://env.example/ws")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Env overrides file
	if cfg.Ethereum.WSEndpoint != "wss://env.example/ws" {
		t.Errorf("WSEndpoint = %q, want env override", cfg.Ethereum.WSEndpoint)
	}
	// File value kept
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	// Defaults filled
	if cfg.Backfill.BatchSize != 10000 {
		t.Errorf("BatchSize = %d, want default 10000", cfg.Backfill.BatchSize)
	}
}

// TestLoadInvalid tests that an invalid merged config fails validation
func TestLoadInvalid(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load() expected validation error without endpoint and module address")
	}
}

// TestModuleAddress tests the parsed module address helper
func TestModuleAddress(t *testing.T) {
	cfg := validConfig()
	want := common.HexToAddress(testModuleAddress)
	if cfg.Module() != want {
		t.Errorf("Module() = %s, want %s", cfg.Module().Hex(), want.Hex())
	}
}

// TestBackfillEndpointFallback tests the backfill endpoint fallback
func TestBackfillEndpointFallback(t *testing.T) {
	cfg := validConfig()
	if got := cfg.BackfillEndpoint(); got != cfg.Ethereum.WSEndpoint {
		t.Errorf("BackfillEndpoint() = %q, want fallback to ws endpoint", got)
	}

	cfg.Ethereum.BackfillEndpoint = "https://mainnet.example"
	if got := cfg.BackfillEndpoint(); got != "https://mainnet.example" {
		t.Errorf("BackfillEndpoint() = %q", got)
	}
}
