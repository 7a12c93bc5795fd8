package quorum

import (
	"testing"

	"replicaft/internal/api"
)

func member(id string, step int) api.QuorumMember {
	return api.QuorumMember{
		ReplicaID:    id,
		Address:      "addr-" + id,
		StoreAddress: "store-" + id,
		Step:         step,
		WorldSize:    1,
	}
}

func TestCompute_AllUpToDate(t *testing.T) {
	q := api.Quorum{
		QuorumID: 3,
		Participants: []api.QuorumMember{
			member("a", 5), member("b", 5), member("c", 5),
		},
	}

	d, err := Compute(q, "b", false)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if d.QuorumID != 3 {
		t.Errorf("Expected quorum id 3, got %d", d.QuorumID)
	}
	if d.ReplicaRank != 1 || d.ReplicaWorldSize != 3 {
		t.Errorf("Expected rank 1/3, got %d/%d", d.ReplicaRank, d.ReplicaWorldSize)
	}
	if d.Heal {
		t.Error("Expected no healing for an up-to-date replica")
	}
	if d.MaxReplicaRank == nil || *d.MaxReplicaRank != 1 {
		t.Errorf("Expected max replica rank 1, got %v", d.MaxReplicaRank)
	}
	if d.MaxWorldSize != 3 {
		t.Errorf("Expected max world size 3, got %d", d.MaxWorldSize)
	}
	if d.StoreAddress != "store-a" {
		t.Errorf("Expected shared store address store-a, got %s", d.StoreAddress)
	}
	if len(d.RecoverDstReplicaRanks) != 0 {
		t.Errorf("Expected no recovery destinations, got %v", d.RecoverDstReplicaRanks)
	}
}

func TestCompute_BehindReplicaHeals(t *testing.T) {
	q := api.Quorum{
		QuorumID: 7,
		Participants: []api.QuorumMember{
			member("a", 10), member("b", 4), member("c", 10),
		},
	}

	d, err := Compute(q, "b", false)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !d.Heal {
		t.Fatal("Expected behind replica to heal")
	}
	if d.MaxStep != 10 {
		t.Errorf("Expected max step 10, got %d", d.MaxStep)
	}
	if d.MaxReplicaRank != nil {
		t.Errorf("Expected nil max replica rank for behind replica, got %v", d.MaxReplicaRank)
	}
	if d.MaxWorldSize != 2 {
		t.Errorf("Expected max world size 2, got %d", d.MaxWorldSize)
	}
	if d.RecoverSrcReplicaRank == nil || *d.RecoverSrcReplicaRank != 0 {
		t.Errorf("Expected recovery source rank 0, got %v", d.RecoverSrcReplicaRank)
	}
	if d.RecoverSrcManagerAddress != "addr-a" {
		t.Errorf("Expected recovery source address addr-a, got %s", d.RecoverSrcManagerAddress)
	}
}

func TestCompute_SourceSeesDestinations(t *testing.T) {
	q := api.Quorum{
		QuorumID: 7,
		Participants: []api.QuorumMember{
			member("a", 10), member("b", 4), member("c", 10),
		},
	}

	d, err := Compute(q, "a", false)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if d.Heal {
		t.Error("Expected source replica not to heal")
	}
	if len(d.RecoverDstReplicaRanks) != 1 || d.RecoverDstReplicaRanks[0] != 1 {
		t.Errorf("Expected recovery destination [1], got %v", d.RecoverDstReplicaRanks)
	}
}

func TestCompute_RoundRobinSources(t *testing.T) {
	q := api.Quorum{
		QuorumID: 1,
		Participants: []api.QuorumMember{
			member("a", 8), member("b", 2), member("c", 8), member("d", 3), member("e", 1),
		},
	}

	// Healing ranks 1, 3, 4 are assigned round-robin over sources 0, 2.
	wantSrc := map[string]int{"b": 0, "d": 2, "e": 0}
	for id, src := range wantSrc {
		d, err := Compute(q, id, false)
		if err != nil {
			t.Fatalf("Compute(%s) failed: %v", id, err)
		}
		if d.RecoverSrcReplicaRank == nil || *d.RecoverSrcReplicaRank != src {
			t.Errorf("Replica %s: expected source %d, got %v", id, src, d.RecoverSrcReplicaRank)
		}
	}

	dA, _ := Compute(q, "a", false)
	if len(dA.RecoverDstReplicaRanks) != 2 {
		t.Errorf("Expected 2 destinations for a, got %v", dA.RecoverDstReplicaRanks)
	}
}

func TestCompute_InitSync(t *testing.T) {
	q := api.Quorum{
		QuorumID: 1,
		Participants: []api.QuorumMember{
			member("a", 0), member("b", 0), member("c", 0),
		},
	}

	tests := []struct {
		name     string
		replica  string
		initSync bool
		wantHeal bool
	}{
		{"first replica is the source", "a", true, false},
		{"second replica syncs", "b", true, true},
		{"third replica syncs", "c", true, true},
		{"no init sync means no healing", "b", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Compute(q, tt.replica, tt.initSync)
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}
			if d.Heal != tt.wantHeal {
				t.Errorf("Expected heal=%v, got %v", tt.wantHeal, d.Heal)
			}
		})
	}
}

func TestCompute_NotAMember(t *testing.T) {
	q := api.Quorum{
		QuorumID:     1,
		Participants: []api.QuorumMember{member("a", 0)},
	}
	if _, err := Compute(q, "ghost", false); err == nil {
		t.Error("Expected error for unknown replica")
	}
}

func TestCompute_EmptyQuorum(t *testing.T) {
	if _, err := Compute(api.Quorum{QuorumID: 1}, "a", false); err == nil {
		t.Error("Expected error for empty quorum")
	}
}
