package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/csm-sentinel/internal/constants"
)

// Config holds all configuration for the sentinel
type Config struct {
	Ethereum Ethereum       `yaml:"ethereum"`
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Backfill BackfillConfig `yaml:"backfill"`
	IPFS     IPFSConfig     `yaml:"ipfs"`
	Ops      OpsConfig      `yaml:"ops"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Links    LinksConfig    `yaml:"links"`
}

// Ethereum holds execution layer connection configuration
type Ethereum struct {
	// WSEndpoint is the WebSocket JSON-RPC endpoint for live subscriptions
	WSEndpoint string `yaml:"ws_endpoint"`

	// BackfillEndpoint is an optional HTTP(S) endpoint used for historical
	// log queries; falls back to WSEndpoint when empty
	BackfillEndpoint string `yaml:"backfill_endpoint,omitempty"`

	// ModuleAddress is the staking module contract address
	ModuleAddress string `yaml:"module_address"`

	// CallTimeout bounds eth_call and discovery requests
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	// Token is the bot token. An empty token runs the sentinel in dry-run
	// mode: notifications are logged instead of sent
	Token string `yaml:"token"`

	// AdminChatIDs receive operational alerts and may query /subscriptions
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`

	// PollTimeout is the long-poll timeout for bot updates
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackfillConfig holds historical replay configuration
type BackfillConfig struct {
	// BatchSize is the number of blocks per eth_getLogs window
	BatchSize uint64 `yaml:"batch_size"`

	// RequestsPerSecond caps backfill log queries
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the rate limiter burst size
	Burst int `yaml:"burst"`

	// StartBlock, when non-zero, overrides the stored checkpoint as the
	// first block of the replay
	StartBlock uint64 `yaml:"start_block,omitempty"`
}

// IPFSConfig holds IPFS gateway configuration
type IPFSConfig struct {
	Gateway   string        `yaml:"gateway"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// OpsConfig holds ops server configuration
type OpsConfig struct {
	// Enabled determines whether the ops HTTP server starts
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MonitorConfig holds staleness monitoring configuration
type MonitorConfig struct {
	// StallInterval is how long the checkpoint may stand still before the
	// admin chat is alerted
	StallInterval time.Duration `yaml:"stall_interval"`
}

// LinksConfig holds explorer base URLs used in notification texts
type LinksConfig struct {
	EtherscanURL   string `yaml:"etherscan_url"`
	BeaconchainURL string `yaml:"beaconchain_url"`
	CSMUIURL       string `yaml:"csm_ui_url"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// Ethereum defaults
	if c.Ethereum.CallTimeout == 0 {
		c.Ethereum.CallTimeout = constants.DefaultCallTimeout
	}

	// Telegram defaults
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = constants.DefaultPollTimeout
	}

	// Database defaults
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultStoragePath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Backfill defaults
	if c.Backfill.BatchSize == 0 {
		c.Backfill.BatchSize = constants.DefaultBlockBatchSize
	}
	if c.Backfill.RequestsPerSecond == 0 {
		c.Backfill.RequestsPerSecond = constants.DefaultBackfillRPS
	}
	if c.Backfill.Burst == 0 {
		c.Backfill.Burst = constants.DefaultBackfillBurst
	}

	// IPFS defaults
	if c.IPFS.Gateway == "" {
		c.IPFS.Gateway = constants.DefaultIPFSGateway
	}
	if c.IPFS.Timeout == 0 {
		c.IPFS.Timeout = constants.DefaultIPFSTimeout
	}
	if c.IPFS.CacheSize == 0 {
		c.IPFS.CacheSize = constants.DistributionLogCacheSize
	}

	// Ops defaults
	if c.Ops.Host == "" {
		c.Ops.Host = constants.DefaultOpsHost
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = constants.DefaultOpsPort
	}

	// Monitor defaults
	if c.Monitor.StallInterval == 0 {
		c.Monitor.StallInterval = constants.DefaultStalenessInterval
	}

	// Link defaults
	if c.Links.EtherscanURL == "" {
		c.Links.EtherscanURL = constants.DefaultEtherscanURL
	}
	if c.Links.BeaconchainURL == "" {
		c.Links.BeaconchainURL = constants.DefaultBeaconchainURL
	}
	if c.Links.CSMUIURL == "" {
		c.Links.CSMUIURL = constants.DefaultCSMUIURL
	}
}

// LoadFromEnv loads configuration from environment variables
// Environment variables take precedence over file configuration
func (c *Config) LoadFromEnv() error {
	// Ethereum configuration
	if endpoint := os.Getenv("SENTINEL_WS_ENDPOINT"); endpoint != "" {
		c.Ethereum.WSEndpoint = endpoint
	}
	if endpoint := os.Getenv("SENTINEL_BACKFILL_ENDPOINT"); endpoint != "" {
		c.Ethereum.BackfillEndpoint = endpoint
	}
	if address := os.Getenv("SENTINEL_MODULE_ADDRESS"); address != "" {
		c.Ethereum.ModuleAddress = address
	}
	if timeout := os.Getenv("SENTINEL_CALL_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_CALL_TIMEOUT: %w", err)
		}
		c.Ethereum.CallTimeout = duration
	}

	// Telegram configuration
	if token := os.Getenv("SENTINEL_TELEGRAM_TOKEN"); token != "" {
		c.Telegram.Token = token
	}
	if adminChatIDs := os.Getenv("SENTINEL_ADMIN_CHAT_IDS"); adminChatIDs != "" {
		c.Telegram.AdminChatIDs = ParseAdminChatIDs(adminChatIDs)
	}
	if timeout := os.Getenv("SENTINEL_POLL_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_POLL_TIMEOUT: %w", err)
		}
		c.Telegram.PollTimeout = duration
	}

	// Database configuration
	if path := os.Getenv("SENTINEL_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// Log configuration
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("SENTINEL_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Backfill configuration
	if batchSize := os.Getenv("SENTINEL_BACKFILL_BATCH_SIZE"); batchSize != "" {
		val, err := strconv.ParseUint(batchSize, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_BACKFILL_BATCH_SIZE: %w", err)
		}
		c.Backfill.BatchSize = val
	}
	if rps := os.Getenv("SENTINEL_BACKFILL_RPS"); rps != "" {
		val, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_BACKFILL_RPS: %w", err)
		}
		c.Backfill.RequestsPerSecond = val
	}
	if burst := os.Getenv("SENTINEL_BACKFILL_BURST"); burst != "" {
		val, err := strconv.Atoi(burst)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_BACKFILL_BURST: %w", err)
		}
		c.Backfill.Burst = val
	}
	if startBlock := os.Getenv("SENTINEL_BACKFILL_START_BLOCK"); startBlock != "" {
		val, err := strconv.ParseUint(startBlock, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_BACKFILL_START_BLOCK: %w", err)
		}
		c.Backfill.StartBlock = val
	}

	// IPFS configuration
	if gateway := os.Getenv("SENTINEL_IPFS_GATEWAY"); gateway != "" {
		c.IPFS.Gateway = gateway
	}
	if timeout := os.Getenv("SENTINEL_IPFS_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_IPFS_TIMEOUT: %w", err)
		}
		c.IPFS.Timeout = duration
	}

	// Ops configuration
	if enabled := os.Getenv("SENTINEL_OPS_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_OPS_ENABLED: %w", err)
		}
		c.Ops.Enabled = val
	}
	if host := os.Getenv("SENTINEL_OPS_HOST"); host != "" {
		c.Ops.Host = host
	}
	if port := os.Getenv("SENTINEL_OPS_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_OPS_PORT: %w", err)
		}
		c.Ops.Port = val
	}

	// Monitor configuration
	if interval := os.Getenv("SENTINEL_STALL_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_STALL_INTERVAL: %w", err)
		}
		c.Monitor.StallInterval = duration
	}

	// Link configuration
	if url := os.Getenv("SENTINEL_ETHERSCAN_URL"); url != "" {
		c.Links.EtherscanURL = url
	}
	if url := os.Getenv("SENTINEL_BEACONCHAIN_URL"); url != "" {
		c.Links.BeaconchainURL = url
	}
	if url := os.Getenv("SENTINEL_CSM_UI_URL"); url != "" {
		c.Links.CSMUIURL = url
	}

	return nil
}

// ParseAdminChatIDs parses a comma or space separated list of Telegram chat
// ids. Entries that do not parse as integers are skipped.
func ParseAdminChatIDs(raw string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, token := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate Ethereum configuration
	if c.Ethereum.WSEndpoint == "" {
		return fmt.Errorf("websocket endpoint is required")
	}
	if c.Ethereum.ModuleAddress == "" {
		return fmt.Errorf("module address is required")
	}
	if !common.IsHexAddress(c.Ethereum.ModuleAddress) {
		return fmt.Errorf("invalid module address %q", c.Ethereum.ModuleAddress)
	}
	if c.Ethereum.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}

	// Validate database configuration
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate backfill configuration
	if c.Backfill.BatchSize == 0 {
		return fmt.Errorf("backfill batch size must be positive")
	}
	if c.Backfill.RequestsPerSecond <= 0 {
		return fmt.Errorf("backfill rate must be positive")
	}
	if c.Backfill.Burst <= 0 {
		return fmt.Errorf("backfill burst must be positive")
	}

	// Validate IPFS configuration
	if c.IPFS.Gateway == "" {
		return fmt.Errorf("IPFS gateway is required")
	}
	if c.IPFS.Timeout <= 0 {
		return fmt.Errorf("IPFS timeout must be positive")
	}
	if c.IPFS.CacheSize <= 0 {
		return fmt.Errorf("IPFS cache size must be positive")
	}

	// Validate monitor configuration
	if c.Monitor.StallInterval <= 0 {
		return fmt.Errorf("stall interval must be positive")
	}

	return nil
}

// Module returns the parsed staking module address. Call Validate first.
func (c *Config) Module() common.Address {
	return common.HexToAddress(c.Ethereum.ModuleAddress)
}

// BackfillEndpoint returns the endpoint for historical queries, falling back
// to the WebSocket endpoint when none is configured.
func (c *Config) BackfillEndpoint() string {
	if c.Ethereum.BackfillEndpoint != "" {
		return c.Ethereum.BackfillEndpoint
	}
	return c.Ethereum.WSEndpoint
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for any missing values
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
