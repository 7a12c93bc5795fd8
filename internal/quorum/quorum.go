package quorum

import (
	"fmt"

	"replicaft/internal/api"
)

// Descriptor is the result of one quorum computation from the point of
// view of a single replica. It is immutable once computed; a new quorum
// produces a new descriptor.
type Descriptor struct {
	QuorumID int

	// Rank and world size within the full quorum. These are used to
	// configure the communication backend: every quorum member joins
	// the backend, including replicas that are still healing.
	ReplicaRank      int
	ReplicaWorldSize int

	// Recovery assignments. RecoverSrcReplicaRank is set when this
	// replica needs healing; RecoverDstReplicaRanks lists the replicas
	// that will heal from this one.
	RecoverSrcManagerAddress string
	RecoverSrcReplicaRank    *int
	RecoverDstReplicaRanks   []int

	// StoreAddress is the rendezvous store shared by the whole quorum.
	StoreAddress string

	// The max-step cohort: the most advanced replicas visible in this
	// quorum. MaxReplicaRank is nil if this replica is behind.
	MaxStep        int
	MaxReplicaRank *int
	MaxWorldSize   int

	// Heal reports whether this replica must fetch a checkpoint before
	// it can commit.
	Heal bool
}

// Compute derives the descriptor for replicaID from a quorum returned
// by the lighthouse.
//
// Replicas at the maximum step form the up-to-date cohort; everyone
// else heals from a cohort member, assigned round-robin. With initSync
// set and the whole quorum at step 0, only the first step-0 replica is
// treated as up to date so that every other replica syncs its initial
// state from it.
func Compute(q api.Quorum, replicaID string, initSync bool) (Descriptor, error) {
	if len(q.Participants) == 0 {
		return Descriptor{}, fmt.Errorf("quorum %d has no participants", q.QuorumID)
	}

	selfRank := -1
	maxStep := 0
	for i, p := range q.Participants {
		if p.ReplicaID == replicaID {
			selfRank = i
		}
		if p.Step > maxStep {
			maxStep = p.Step
		}
	}
	if selfRank < 0 {
		return Descriptor{}, fmt.Errorf("replica %s is not in quorum %d", replicaID, q.QuorumID)
	}

	upToDate := make([]int, 0, len(q.Participants))
	for i, p := range q.Participants {
		if p.Step == maxStep {
			upToDate = append(upToDate, i)
		}
	}
	if maxStep == 0 && initSync && len(q.Participants) > 1 {
		// Initial sync: a single source replica, everyone else heals.
		upToDate = upToDate[:1]
	}

	d := Descriptor{
		QuorumID:         q.QuorumID,
		ReplicaRank:      selfRank,
		ReplicaWorldSize: len(q.Participants),
		StoreAddress:     q.Participants[0].StoreAddress,
		MaxStep:          maxStep,
		MaxWorldSize:     len(upToDate),
	}

	cohortRank := make(map[int]int, len(upToDate))
	for i, rank := range upToDate {
		cohortRank[rank] = i
	}
	if r, ok := cohortRank[selfRank]; ok {
		rr := r
		d.MaxReplicaRank = &rr
	}

	healing := make([]int, 0)
	for i := range q.Participants {
		if _, ok := cohortRank[i]; !ok {
			healing = append(healing, i)
		}
	}

	for i, rank := range healing {
		src := upToDate[i%len(upToDate)]
		if rank == selfRank {
			d.Heal = true
			srcRank := src
			d.RecoverSrcReplicaRank = &srcRank
			d.RecoverSrcManagerAddress = q.Participants[src].Address
		}
		if src == selfRank {
			d.RecoverDstReplicaRanks = append(d.RecoverDstReplicaRanks, rank)
		}
	}

	return d, nil
}
