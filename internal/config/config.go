package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"replicaft/internal/manager"
)

// Config is the on-disk trainer configuration. Every field can be
// overridden by a REPLICAFT_* environment variable, and the worker
// identity fields additionally honor the conventional RANK and
// WORLD_SIZE variables set by process launchers.
type Config struct {
	Replica  ReplicaConfig  `yaml:"replica"`
	Services ServicesConfig `yaml:"services"`
	Quorum   QuorumConfig   `yaml:"quorum"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

type ReplicaConfig struct {
	ID             string `yaml:"id"`
	GroupRank      int    `yaml:"group_rank"`
	GroupWorldSize int    `yaml:"group_world_size"`
	Hostname       string `yaml:"hostname"`
	BindPort       int    `yaml:"bind_port"`
}

type ServicesConfig struct {
	StoreAddr      string `yaml:"store_addr"`
	LighthouseAddr string `yaml:"lighthouse_addr"`
}

type QuorumConfig struct {
	MinReplicaSize    int    `yaml:"min_replica_size"`
	WorldSizeMode     string `yaml:"world_size_mode"`
	UseAsyncQuorum    bool   `yaml:"use_async_quorum"`
	InitSync          *bool  `yaml:"init_sync"`
	ProactiveRecovery bool   `yaml:"proactive_recovery"`
	MaxRetries        int    `yaml:"max_retries"`
}

type TimeoutsConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	QuorumTimeout     time.Duration `yaml:"quorum_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Load reads path (optional, "" for env-only), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	envString("REPLICAFT_REPLICA_ID", &c.Replica.ID)
	envInt("RANK", &c.Replica.GroupRank)
	envInt("WORLD_SIZE", &c.Replica.GroupWorldSize)
	envInt("REPLICAFT_GROUP_RANK", &c.Replica.GroupRank)
	envInt("REPLICAFT_GROUP_WORLD_SIZE", &c.Replica.GroupWorldSize)
	envString("REPLICAFT_HOSTNAME", &c.Replica.Hostname)
	envInt("REPLICAFT_BIND_PORT", &c.Replica.BindPort)

	envString("REPLICAFT_STORE_ADDR", &c.Services.StoreAddr)
	envString("REPLICAFT_LIGHTHOUSE_ADDR", &c.Services.LighthouseAddr)

	envInt("REPLICAFT_MIN_REPLICA_SIZE", &c.Quorum.MinReplicaSize)
	envString("REPLICAFT_WORLD_SIZE_MODE", &c.Quorum.WorldSizeMode)
	envBool("REPLICAFT_USE_ASYNC_QUORUM", &c.Quorum.UseAsyncQuorum)
	envBoolPtr("REPLICAFT_INIT_SYNC", &c.Quorum.InitSync)
	envBool("REPLICAFT_PROACTIVE_RECOVERY", &c.Quorum.ProactiveRecovery)
	envInt("REPLICAFT_MAX_RETRIES", &c.Quorum.MaxRetries)

	envDuration("REPLICAFT_TIMEOUT", &c.Timeouts.Timeout)
	envDuration("REPLICAFT_QUORUM_TIMEOUT", &c.Timeouts.QuorumTimeout)
	envDuration("REPLICAFT_CONNECT_TIMEOUT", &c.Timeouts.ConnectTimeout)
	envDuration("REPLICAFT_HEARTBEAT_INTERVAL", &c.Timeouts.HeartbeatInterval)
}

// Validate checks the fields the manager cannot default.
func (c *Config) Validate() error {
	if c.Replica.ID == "" {
		return fmt.Errorf("replica.id is required")
	}
	if c.Services.StoreAddr == "" {
		return fmt.Errorf("services.store_addr is required")
	}
	if c.Quorum.MinReplicaSize <= 0 {
		return fmt.Errorf("quorum.min_replica_size must be greater than 0")
	}
	if _, err := c.worldSizeMode(); err != nil {
		return err
	}
	ws := c.Replica.GroupWorldSize
	if ws == 0 {
		ws = 1
	}
	if c.Replica.GroupRank < 0 || c.Replica.GroupRank >= ws {
		return fmt.Errorf("replica.group_rank=%d out of range for group_world_size=%d", c.Replica.GroupRank, ws)
	}
	return nil
}

func (c *Config) worldSizeMode() (manager.WorldSizeMode, error) {
	switch strings.ToUpper(c.Quorum.WorldSizeMode) {
	case "", "DYNAMIC":
		return manager.Dynamic, nil
	case "FIXED_WITH_SPARES":
		return manager.FixedWithSpares, nil
	default:
		return 0, fmt.Errorf("unknown quorum.world_size_mode %q", c.Quorum.WorldSizeMode)
	}
}

// ManagerOptions converts the configuration into manager options.
func (c *Config) ManagerOptions() manager.Options {
	mode, _ := c.worldSizeMode()
	initSync := true
	if c.Quorum.InitSync != nil {
		initSync = *c.Quorum.InitSync
	}
	return manager.Options{
		ReplicaID:         c.Replica.ID,
		GroupRank:         c.Replica.GroupRank,
		GroupWorldSize:    c.Replica.GroupWorldSize,
		MinReplicaSize:    c.Quorum.MinReplicaSize,
		StoreAddr:         c.Services.StoreAddr,
		LighthouseAddr:    c.Services.LighthouseAddr,
		Hostname:          c.Replica.Hostname,
		BindPort:          c.Replica.BindPort,
		UseAsyncQuorum:    c.Quorum.UseAsyncQuorum,
		WorldSizeMode:     mode,
		InitSync:          initSync,
		ProactiveRecovery: c.Quorum.ProactiveRecovery,
		MaxRetries:        c.Quorum.MaxRetries,
		Timeout:           c.Timeouts.Timeout,
		QuorumTimeout:     c.Timeouts.QuorumTimeout,
		ConnectTimeout:    c.Timeouts.ConnectTimeout,
		HeartbeatInterval: c.Timeouts.HeartbeatInterval,
	}
}

func envString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(name string, dst **bool) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = &b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
