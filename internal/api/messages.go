package api

// QuorumMember describes one replica group participating in a quorum.
type QuorumMember struct {
	ReplicaID      string `json:"replica_id"`
	Address        string `json:"address"`
	StoreAddress   string `json:"store_address"`
	Step           int    `json:"step"`
	WorldSize      int    `json:"world_size"`
	ShrinkOnly     bool   `json:"shrink_only"`
	CommitFailures int    `json:"commit_failures"`
	Errored        bool   `json:"errored"`
}

// Quorum is one quorum computation result, immutable once returned.
type Quorum struct {
	QuorumID     int            `json:"quorum_id"`
	Participants []QuorumMember `json:"participants"`
	CreatedMs    int64          `json:"created_ms"`
}

// LighthouseQuorumRequest asks the lighthouse to include the requester
// in the next quorum and blocks until that quorum is cut.
type LighthouseQuorumRequest struct {
	Requester QuorumMember `json:"requester"`
}

type LighthouseQuorumResponse struct {
	Quorum Quorum `json:"quorum"`
}

type HeartbeatRequest struct {
	ReplicaID string `json:"replica_id"`
}

type HeartbeatResponse struct{}

type SubscribeFailuresRequest struct{}

// FailureNotification names a replica the lighthouse declared failed.
type FailureNotification struct {
	ReplicaID string `json:"replica_id"`
}

// ManagerQuorumRequest is sent by each local rank of a replica group to
// the group's rank-0 manager endpoint at the start of a step.
type ManagerQuorumRequest struct {
	GroupRank          int    `json:"group_rank"`
	Step               int    `json:"step"`
	CheckpointMetadata string `json:"checkpoint_metadata"`
	ShrinkOnly         bool   `json:"shrink_only"`
	InitSync           bool   `json:"init_sync"`
	CommitFailures     int    `json:"commit_failures"`
	BackendErrored     bool   `json:"backend_errored"`
}

// ManagerQuorumResponse carries the quorum descriptor computed for this
// replica once the whole group has joined and the lighthouse answered.
type ManagerQuorumResponse struct {
	QuorumID                 int    `json:"quorum_id"`
	ReplicaRank              int    `json:"replica_rank"`
	ReplicaWorldSize         int    `json:"replica_world_size"`
	RecoverSrcManagerAddress string `json:"recover_src_manager_address"`
	RecoverSrcReplicaRank    *int   `json:"recover_src_replica_rank"`
	RecoverDstReplicaRanks   []int  `json:"recover_dst_replica_ranks"`
	StoreAddress             string `json:"store_address"`
	MaxStep                  int    `json:"max_step"`
	MaxReplicaRank           *int   `json:"max_replica_rank"`
	MaxWorldSize             int    `json:"max_world_size"`
	Heal                     bool   `json:"heal"`
}

// ShouldCommitRequest carries one local rank's readiness vote.
type ShouldCommitRequest struct {
	GroupRank    int  `json:"group_rank"`
	Step         int  `json:"step"`
	ShouldCommit bool `json:"should_commit"`
}

// ShouldCommitResponse is the group-wide decision, identical for every
// rank in the replica group.
type ShouldCommitResponse struct {
	ShouldCommit bool `json:"should_commit"`
}

type CheckpointMetadataRequest struct {
	GroupRank int `json:"group_rank"`
}

type CheckpointMetadataResponse struct {
	CheckpointMetadata string `json:"checkpoint_metadata"`
}

// Store messages. The store is a small rendezvous key-value service
// used for manager discovery and collective rendezvous.

type StoreSetRequest struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type StoreSetResponse struct{}

type StoreGetRequest struct {
	Key string `json:"key"`
}

type StoreGetResponse struct {
	Value []byte `json:"value"`
	Found bool   `json:"found"`
}

// StoreWaitRequest blocks server-side until the key exists or the
// timeout expires.
type StoreWaitRequest struct {
	Key       string `json:"key"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type StoreWaitResponse struct {
	Value []byte `json:"value"`
}
