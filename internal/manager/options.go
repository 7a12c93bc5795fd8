package manager

import (
	"fmt"
	"log"
	"time"
)

// WorldSizeMode controls how quorum ranks map to participating ranks
// when the quorum is larger than the minimum replica size.
type WorldSizeMode int

const (
	// Dynamic uses every available replica and normalizes payloads by
	// the observed participant count.
	Dynamic WorldSizeMode = iota
	// FixedWithSpares caps participants at the minimum replica size;
	// replicas ranked at or beyond it become non-participating spares
	// contributing neutral values.
	FixedWithSpares
)

// String returns the string representation of WorldSizeMode.
func (m WorldSizeMode) String() string {
	switch m {
	case Dynamic:
		return "DYNAMIC"
	case FixedWithSpares:
		return "FIXED_WITH_SPARES"
	default:
		return "UNKNOWN"
	}
}

// State is the coordinator-owned portion of a checkpoint.
type State struct {
	Step             int `json:"step"`
	BatchesCommitted int `json:"batches_committed"`
}

// Bundle is the two-part state snapshot moved during healing: the
// user's state plus the coordinator's.
type Bundle[T any] struct {
	User        T     `json:"user"`
	Coordinator State `json:"coordinator"`
}

// Options configures a Manager.
type Options struct {
	// ReplicaID is the logical replica group id. A fresh unique suffix
	// is appended on every process start so a quickly restarted worker
	// is distinguishable from the one it replaced. Group rank 0 only.
	ReplicaID string

	// GroupRank and GroupWorldSize identify this worker within its
	// replica group.
	GroupRank      int
	GroupWorldSize int

	// MinReplicaSize is the minimum number of replica groups that must
	// participate for a step to commit.
	MinReplicaSize int

	// StoreAddr is the replica group's rendezvous store (host:port).
	StoreAddr string

	// LighthouseAddr is the quorum service address. Required on group
	// rank 0 and whenever ProactiveRecovery is enabled.
	LighthouseAddr string

	// Hostname is advertised to peers; BindPort is the manager server
	// port on group rank 0 (0 for arbitrary).
	Hostname string
	BindPort int

	// UseAsyncQuorum overlaps quorum formation with the caller's
	// forward work instead of blocking in StartQuorum.
	UseAsyncQuorum bool

	WorldSizeMode WorldSizeMode

	// InitSync makes all replicas sync state from a single source on
	// step 0. Disable when initial state is seeded identically.
	InitSync bool

	// ProactiveRecovery subscribes to the lighthouse failure feed and
	// aborts local collectives as soon as a peer is reported dead.
	ProactiveRecovery bool

	// MaxRetries bounds consecutive commit failures. Zero retries
	// forever.
	MaxRetries int

	// Timeout covers collectives, commit exchange and checkpoint
	// operations. QuorumTimeout bounds quorum formation and should
	// exceed the step interval. ConnectTimeout bounds dialing.
	Timeout        time.Duration
	QuorumTimeout  time.Duration
	ConnectTimeout time.Duration

	HeartbeatInterval time.Duration
	SubscribeTimeout  time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.GroupWorldSize <= 0 {
		out.GroupWorldSize = 1
	}
	if out.Hostname == "" {
		out.Hostname = "127.0.0.1"
	}
	if out.Timeout <= 0 {
		out.Timeout = 60 * time.Second
	}
	if out.QuorumTimeout <= 0 {
		out.QuorumTimeout = 60 * time.Second
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 100 * time.Millisecond
	}
	if out.SubscribeTimeout <= 0 {
		out.SubscribeTimeout = 100 * time.Millisecond
	}
	return out
}

func (o *Options) validate() error {
	if o.MinReplicaSize <= 0 {
		return fmt.Errorf("min replica size must be positive, got %d", o.MinReplicaSize)
	}
	if o.StoreAddr == "" {
		return fmt.Errorf("store address cannot be empty")
	}
	if o.GroupRank < 0 || o.GroupRank >= o.GroupWorldSize {
		return fmt.Errorf("group rank %d out of range for world size %d", o.GroupRank, o.GroupWorldSize)
	}
	if o.GroupRank == 0 && o.LighthouseAddr == "" {
		return fmt.Errorf("lighthouse address is required on group rank 0")
	}
	if o.ProactiveRecovery && o.LighthouseAddr == "" {
		return fmt.Errorf("lighthouse address is required for proactive recovery")
	}
	return nil
}

// stepLogger prefixes log lines with the replica id, group rank and
// current step, injected per manager rather than shared globally.
type stepLogger struct {
	replicaID string
	groupRank int
	step      func() int
}

func (l *stepLogger) Printf(format string, args ...any) {
	prefix := fmt.Sprintf("[%s/%d - step %d] ", l.replicaID, l.groupRank, l.step())
	log.Printf(prefix+format, args...)
}
