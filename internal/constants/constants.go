package constants

import "time"

// Execution Layer Constants
const (
	// DefaultCallTimeout is the default timeout for eth_call and discovery requests
	DefaultCallTimeout = 30 * time.Second

	// DefaultBlockBatchSize is the default number of blocks per eth_getLogs window
	// during historical backfill
	DefaultBlockBatchSize = 10000

	// DefaultBackfillRPS is the default number of backfill log queries per second
	DefaultBackfillRPS = 10

	// DefaultBackfillBurst is the default burst size for the backfill rate limiter
	DefaultBackfillBurst = 1

	// ReconnectDelay is the pause between WebSocket reconnection attempts
	ReconnectDelay = 5 * time.Second
)

// Telegram Constants
const (
	// MessageCharLimit is the maximum message length before chunking
	// (Telegram caps messages at 4096; headroom left for formatting)
	MessageCharLimit = 4000

	// DefaultPollTimeout is the long-poll timeout for the Telegram bot
	DefaultPollTimeout = 10 * time.Second
)

// IPFS Constants
const (
	// DefaultIPFSGateway is the default HTTP gateway for fetching IPFS content
	DefaultIPFSGateway = "https://ipfs.io/ipfs/"

	// DefaultIPFSTimeout is the default timeout for IPFS gateway fetches
	DefaultIPFSTimeout = 30 * time.Second

	// DistributionLogCacheSize is the number of distribution log documents
	// kept in the CID-keyed cache
	DistributionLogCacheSize = 3

	// VersionCacheSize is the number of per-block contract version lookups
	// kept cached
	VersionCacheSize = 10
)

// Storage Constants
const (
	// DefaultStoragePath is the default PebbleDB directory
	DefaultStoragePath = ".storage"

	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000
)

// Ops Server Constants
const (
	// DefaultOpsHost is the default ops server host
	DefaultOpsHost = "localhost"

	// DefaultOpsPort is the default ops server port
	DefaultOpsPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second
)

// Monitoring Constants
const (
	// DefaultStalenessInterval is how often the block staleness check runs;
	// an unchanged head across one interval triggers an admin alert
	DefaultStalenessInterval = 30 * time.Minute
)

// Link Constants
const (
	// DefaultEtherscanURL is the default block explorer base URL
	DefaultEtherscanURL = "https://etherscan.io"

	// DefaultBeaconchainURL is the default beacon chain explorer base URL
	DefaultBeaconchainURL = "https://beaconcha.in"

	// DefaultCSMUIURL is the default Community Staking Module UI base URL
	DefaultCSMUIURL = "https://csm.lido.fi"
)

// Protocol Constants
const (
	// ExitRequestDeadline is how long a node operator has to exit a validator
	// after a ValidatorExitRequest is emitted
	ExitRequestDeadline = 4 * 24 * time.Hour
)
