package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"replicaft/internal/manager"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replicaft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
replica:
  id: train_gpu_0
  group_rank: 1
  group_world_size: 4
services:
  store_addr: localhost:29500
  lighthouse_addr: localhost:29510
quorum:
  min_replica_size: 2
  world_size_mode: fixed_with_spares
  max_retries: 3
timeouts:
  timeout: 30s
  quorum_timeout: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	opts := cfg.ManagerOptions()
	require.Equal(t, "train_gpu_0", opts.ReplicaID)
	require.Equal(t, 1, opts.GroupRank)
	require.Equal(t, 4, opts.GroupWorldSize)
	require.Equal(t, 2, opts.MinReplicaSize)
	require.Equal(t, manager.FixedWithSpares, opts.WorldSizeMode)
	require.Equal(t, 3, opts.MaxRetries)
	require.Equal(t, 30*time.Second, opts.Timeout)
	require.Equal(t, 2*time.Minute, opts.QuorumTimeout)
	require.True(t, opts.InitSync)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
replica:
  id: train
services:
  store_addr: localhost:29500
quorum:
  min_replica_size: 1
`)

	t.Setenv("RANK", "2")
	t.Setenv("WORLD_SIZE", "8")
	t.Setenv("REPLICAFT_STORE_ADDR", "otherhost:29501")
	t.Setenv("REPLICAFT_INIT_SYNC", "false")
	t.Setenv("REPLICAFT_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	opts := cfg.ManagerOptions()
	require.Equal(t, 2, opts.GroupRank)
	require.Equal(t, 8, opts.GroupWorldSize)
	require.Equal(t, "otherhost:29501", opts.StoreAddr)
	require.False(t, opts.InitSync)
	require.Equal(t, 45*time.Second, opts.Timeout)
}

func TestEnvOnly(t *testing.T) {
	t.Setenv("REPLICAFT_REPLICA_ID", "train")
	t.Setenv("REPLICAFT_STORE_ADDR", "localhost:29500")
	t.Setenv("REPLICAFT_MIN_REPLICA_SIZE", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Quorum.MinReplicaSize)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing id", Config{Services: ServicesConfig{StoreAddr: "x:1"}, Quorum: QuorumConfig{MinReplicaSize: 1}}},
		{"missing store", Config{Replica: ReplicaConfig{ID: "a"}, Quorum: QuorumConfig{MinReplicaSize: 1}}},
		{"zero min replicas", Config{Replica: ReplicaConfig{ID: "a"}, Services: ServicesConfig{StoreAddr: "x:1"}}},
		{"bad mode", Config{Replica: ReplicaConfig{ID: "a"}, Services: ServicesConfig{StoreAddr: "x:1"}, Quorum: QuorumConfig{MinReplicaSize: 1, WorldSizeMode: "ELASTIC"}}},
		{"rank out of range", Config{Replica: ReplicaConfig{ID: "a", GroupRank: 2, GroupWorldSize: 2}, Services: ServicesConfig{StoreAddr: "x:1"}, Quorum: QuorumConfig{MinReplicaSize: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.Validate())
		})
	}
}
