// Package config loads runtime configuration from a YAML file overlaid with
// environment variables (via a .env file), covering every option group in
// spec.md §6.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/meridian-chain/meridian-node/internal/merrors"
)

// ConsensusConfig holds the DPoS tuning knobs of spec.md §4.4/§6.
type ConsensusConfig struct {
	ValidatorsPerPool      int   `yaml:"validators_per_pool"`
	BlocksPerEpoch         int   `yaml:"blocks_per_epoch"`
	BlockIntervalMs        int   `yaml:"block_interval_ms"`
	MinStake               uint64 `yaml:"min_stake"`
	ShardCount             int   `yaml:"shard_count"`
	FinalityConfirmations  int   `yaml:"finality_confirmations"`
	OptimisticValidation   bool  `yaml:"optimistic_validation"`
}

// MempoolConfig holds the mempool's capacity and fee-floor knobs of spec.md §4.3.
type MempoolConfig struct {
	MaxSize        int     `yaml:"max_size"`
	MaxAgeSeconds  int     `yaml:"max_age_seconds"`
	MinFeePerByte  float64 `yaml:"min_fee_per_byte"`
	MaxTxSize      int     `yaml:"max_tx_size"`
}

// NetworkConfig holds the peer-to-peer transport knobs of spec.md §4.5.
type NetworkConfig struct {
	ListenAddr        string   `yaml:"listen_addr"`
	BootstrapPeers    []string `yaml:"bootstrap_peers"`
	MaxPeers          int      `yaml:"max_peers"`
	AnnounceIntervalMs int     `yaml:"announce_interval_ms"`
	ConnectionTimeoutMs int    `yaml:"connection_timeout_ms"`
	HandshakeTimeoutMs  int    `yaml:"handshake_timeout_ms"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Gossip    GossipConfig    `yaml:"gossip"`
	Bloom     BloomConfig     `yaml:"bloom"`
	FastPath  FastPathConfig  `yaml:"fast_path"`
	Mesh      MeshConfig      `yaml:"mesh"`
}

// DiscoveryConfig tunes peer discovery, spec.md §4.5.4.
type DiscoveryConfig struct {
	DnsSeeds             []string `yaml:"dns_seeds"`
	PeerExchangeIntervalMs int    `yaml:"peer_exchange_interval_ms"`
	MaxPeersToExchange   int      `yaml:"max_peers_to_exchange"`
	LocalDiscoveryIntervalMs int  `yaml:"local_discovery_interval_ms"`
	MaxDiscoveryPeers    int      `yaml:"max_discovery_peers"`
}

// GossipConfig tunes block/transaction propagation, spec.md §4.5.5.
type GossipConfig struct {
	InitialBlockRelayCount int  `yaml:"initial_block_relay_count"`
	MinBroadcastIntervalMs int  `yaml:"min_broadcast_interval_ms"`
	MaxTxBatchSize         int  `yaml:"max_tx_batch_size"`
	UseBloomFilter         bool `yaml:"use_bloom_filter"`
}

// BloomConfig sizes the per-peer transaction Bloom filter, spec.md §4.5.6.
type BloomConfig struct {
	ExpectedElements   uint64  `yaml:"expected_elements"`
	FalsePositiveRate  float64 `yaml:"false_positive_rate"`
	MaxTransactions    uint64  `yaml:"max_transactions"`
}

// FastPathConfig tunes the fast-path peer set, spec.md §4.5.7.
type FastPathConfig struct {
	MinPeers          int   `yaml:"min_peers"`
	MaxPeers          int   `yaml:"max_peers"`
	RefreshIntervalMs int   `yaml:"refresh_interval_ms"`
	Types             []MessageTypeName `yaml:"fast_path_types"`
}

// MessageTypeName names a MessageType in config, avoiding an import cycle
// between config and network.
type MessageTypeName string

// MeshConfig tunes the region-aware topology optimiser, spec.md §4.5.9.
type MeshConfig struct {
	ConnectionsPerRegion    int `yaml:"connections_per_region"`
	MinOutbound             int `yaml:"min_outbound"`
	MaxOutbound             int `yaml:"max_outbound"`
	MaxInbound              int `yaml:"max_inbound"`
	OptimizationIntervalMs  int `yaml:"optimization_interval_ms"`
	ConnectionRetryIntervalMs int `yaml:"connection_retry_interval_ms"`
}

// BandwidthConfig holds the adaptive bandwidth manager's knobs of spec.md §4.5.8.
type BandwidthConfig struct {
	MaxOutbound       uint64  `yaml:"max_outbound"`
	MaxInbound        uint64  `yaml:"max_inbound"`
	BurstFactor       float64 `yaml:"burst_factor"`
	MeasurementWindowMs int   `yaml:"measurement_window_ms"`
	UpdateIntervalMs  int     `yaml:"update_interval_ms"`
	MinPeerBandwidth  uint64  `yaml:"min_peer_bandwidth"`
}

// ValidationServiceConfig holds the background validation service's knobs of
// spec.md §4.7.
type ValidationServiceConfig struct {
	MaxCPUUsage           float64 `yaml:"max_cpu_usage"`
	MaxMemoryUsage        float64 `yaml:"max_memory_usage"`
	QueueSizeLimit        int     `yaml:"queue_size_limit"`
	ProcessingTimeSlotMs  int     `yaml:"processing_time_slot_ms"`
	BatchSize             int     `yaml:"batch_size"`
	HealthCheckIntervalMs int     `yaml:"health_check_interval_ms"`
	MaxRecoveryAttempts   int     `yaml:"max_recovery_attempts"`
}

// TxServiceConfig holds the transaction service's fee-estimation and history
// cache knobs of spec.md §4.6.
type TxServiceConfig struct {
	FeeModel            string  `yaml:"fee_model"` // fixed | size_based | type_based | dynamic
	DefaultFee          uint64  `yaml:"default_fee"`
	CongestionMultiplier float64 `yaml:"congestion_multiplier"`
	MaxHistoryItems     int     `yaml:"max_history_items"`
}

// Config is the full runtime configuration for a meridiand node.
type Config struct {
	Consensus  ConsensusConfig         `yaml:"consensus"`
	Mempool    MempoolConfig           `yaml:"mempool"`
	Network    NetworkConfig           `yaml:"network"`
	Bandwidth  BandwidthConfig         `yaml:"bandwidth"`
	Validation ValidationServiceConfig `yaml:"validation"`
	TxService  TxServiceConfig         `yaml:"tx_service"`

	DataDir   string `yaml:"data_dir"`
	NetworkID string `yaml:"network_id"`
}

// Default returns a Config populated with conservative defaults, used when no
// config file is present and as the base that file/env values overlay.
func Default() Config {
	return Config{
		Consensus: ConsensusConfig{
			ValidatorsPerPool:     100,
			BlocksPerEpoch:        1000,
			BlockIntervalMs:       2000,
			MinStake:              1000,
			ShardCount:            4,
			FinalityConfirmations: 12,
			OptimisticValidation:  false,
		},
		Mempool: MempoolConfig{
			MaxSize:       50000,
			MaxAgeSeconds: 3600,
			MinFeePerByte: 0.001,
			MaxTxSize:     64 * 1024,
		},
		Network: NetworkConfig{
			ListenAddr:          "0.0.0.0:9333",
			MaxPeers:            64,
			AnnounceIntervalMs:  5000,
			ConnectionTimeoutMs: 10000,
			HandshakeTimeoutMs:  5000,
			Discovery: DiscoveryConfig{
				PeerExchangeIntervalMs:   30000,
				MaxPeersToExchange:       16,
				LocalDiscoveryIntervalMs: 60000,
				MaxDiscoveryPeers:        512,
			},
			Gossip: GossipConfig{
				InitialBlockRelayCount: 8,
				MinBroadcastIntervalMs: 500,
				MaxTxBatchSize:         256,
				UseBloomFilter:         true,
			},
			Bloom: BloomConfig{
				ExpectedElements:  10000,
				FalsePositiveRate: 0.01,
				MaxTransactions:   10000,
			},
			FastPath: FastPathConfig{
				MinPeers:          3,
				MaxPeers:          8,
				RefreshIntervalMs: 10000,
				Types:             []MessageTypeName{"BlockAnnouncement", "TransactionAnnouncement", "CheckpointVote"},
			},
			Mesh: MeshConfig{
				ConnectionsPerRegion:      4,
				MinOutbound:               8,
				MaxOutbound:               32,
				MaxInbound:                64,
				OptimizationIntervalMs:    30000,
				ConnectionRetryIntervalMs: 60000,
			},
		},
		Bandwidth: BandwidthConfig{
			MaxOutbound:         10 << 20,
			MaxInbound:          10 << 20,
			BurstFactor:         2.0,
			MeasurementWindowMs: 1000,
			UpdateIntervalMs:    5000,
			MinPeerBandwidth:    1 << 10,
		},
		Validation: ValidationServiceConfig{
			MaxCPUUsage:           75,
			MaxMemoryUsage:        80,
			QueueSizeLimit:        10000,
			ProcessingTimeSlotMs:  100,
			BatchSize:             256,
			HealthCheckIntervalMs: 5000,
			MaxRecoveryAttempts:   3,
		},
		TxService: TxServiceConfig{
			FeeModel:              "dynamic",
			DefaultFee:            100,
			CongestionMultiplier:  1.0,
			MaxHistoryItems:       256,
		},
		DataDir:   "./data",
		NetworkID: "meridian-mainnet",
	}
}

// Load reads envPath (if present, via godotenv) into the process environment,
// then reads yamlPath and unmarshals it over Default(). Either path may be
// empty, in which case that step is skipped.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return cfg, merrors.Wrap(merrors.Initialization, "load .env file", err)
		}
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnvOverrides(cfg), nil
			}
			return cfg, merrors.Wrap(merrors.Initialization, "read config file", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, merrors.Wrap(merrors.Initialization, "parse config yaml", err)
		}
	}

	return applyEnvOverrides(cfg), nil
}

// applyEnvOverrides lets a small set of environment variables override the
// loaded config, following the teacher's pattern of env-first server config.
func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("MERIDIAN_LISTEN_ADDR"); v != "" {
		cfg.Network.ListenAddr = v
	}
	if v := os.Getenv("MERIDIAN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MERIDIAN_NETWORK_ID"); v != "" {
		cfg.NetworkID = v
	}
	if v := os.Getenv("MERIDIAN_SHARD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Consensus.ShardCount = n
		}
	}
	return cfg
}

// Validate checks the configuration for startup-fatal misconfigurations, per
// spec.md §7's "consensus errors at startup abort initialisation" policy.
func (c Config) Validate() error {
	if c.Consensus.ShardCount <= 0 {
		return merrors.New(merrors.Initialization, "shard_count must be positive")
	}
	if c.Consensus.ValidatorsPerPool <= 0 {
		return merrors.New(merrors.Initialization, "validators_per_pool must be positive")
	}
	if c.Mempool.MaxSize <= 0 {
		return merrors.New(merrors.Initialization, "mempool max_size must be positive")
	}
	if c.Network.ListenAddr == "" {
		return merrors.New(merrors.Initialization, "network listen_addr must be set")
	}
	return nil
}
