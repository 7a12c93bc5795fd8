package it

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoReplicasTrainTogether(t *testing.T) {
	c := NewCluster(t, 2, 2*time.Second)

	a := c.StartReplica(t, "repl_a", []float64{10, 10}, 2)
	b := c.StartReplica(t, "repl_b", []float64{10, 10}, 2)

	// Both replicas contribute a gradient; each applies the mean.
	res := Step(map[*Replica][]float64{
		a: {1, 1},
		b: {3, 3},
	})
	for r, sr := range res {
		require.NoError(t, sr.Err, "replica %s", r.ID)
		require.True(t, sr.Committed, "replica %s", r.ID)
		assert.Equal(t, []float64{2, 2}, sr.Reduced, "replica %s", r.ID)
	}

	assert.Equal(t, []float64{8, 8}, a.State().Weights)
	assert.Equal(t, a.State(), b.State())
	assert.Equal(t, 1, a.Manager.CurrentStep())
	assert.Equal(t, 1, b.Manager.CurrentStep())
	assert.Equal(t, 2, a.Manager.BatchesCommitted())

	// A second step reuses the same quorum.
	res = Step(map[*Replica][]float64{
		a: {2, 2},
		b: {2, 2},
	})
	for r, sr := range res {
		require.NoError(t, sr.Err, "replica %s", r.ID)
		require.True(t, sr.Committed, "replica %s", r.ID)
	}
	assert.Equal(t, []float64{6, 6}, a.State().Weights)
	assert.Equal(t, 2, a.Manager.CurrentStep())
	assert.Equal(t, 4, a.Manager.BatchesCommitted())
}

func TestSurvivingReplicaContinuesAfterPeerDies(t *testing.T) {
	c := NewCluster(t, 1, 500*time.Millisecond)

	a := c.StartReplica(t, "repl_a", []float64{10}, 1)
	b := c.StartReplica(t, "repl_b", []float64{10}, 1)

	res := Step(map[*Replica][]float64{
		a: {1},
		b: {1},
	})
	require.True(t, res[a].Committed)
	require.True(t, res[b].Committed)
	require.Equal(t, 2, a.Manager.NumParticipants())

	c.Kill("repl_b")

	// The next quorum forms without the dead peer once the join
	// timeout passes, and training continues with one replica.
	res = Step(map[*Replica][]float64{
		a: {1},
	})
	require.NoError(t, res[a].Err)
	require.True(t, res[a].Committed)
	assert.Equal(t, 1, a.Manager.NumParticipants())
	assert.Equal(t, 2, a.Manager.CurrentStep())
	assert.Equal(t, []float64{8}, a.State().Weights)
}

func TestLateJoinerHealsFromPeer(t *testing.T) {
	c := NewCluster(t, 1, 2*time.Second)

	a := c.StartReplica(t, "repl_a", []float64{4, 4}, 1)

	// Two solo steps put A ahead.
	for i := 0; i < 2; i++ {
		res := Step(map[*Replica][]float64{a: {1, 1}})
		require.NoError(t, res[a].Err)
		require.True(t, res[a].Committed)
	}
	require.Equal(t, 2, a.Manager.CurrentStep())
	require.Equal(t, []float64{2, 2}, a.State().Weights)

	// B joins with stale weights and recovers A's state inside the
	// step, then participates in the allreduce.
	b := c.StartReplica(t, "repl_b", []float64{0, 0}, 1)
	res := Step(map[*Replica][]float64{
		a: {2, 2},
		b: {4, 4},
	})
	require.NoError(t, res[a].Err)
	require.NoError(t, res[b].Err)
	require.True(t, res[a].Committed)
	require.True(t, res[b].Committed)

	assert.Equal(t, 3, a.Manager.CurrentStep())
	assert.Equal(t, 3, b.Manager.CurrentStep())
	assert.Equal(t, []float64{-1, -1}, a.State().Weights)
	assert.Equal(t, a.State(), b.State())
	assert.Equal(t, a.Manager.BatchesCommitted(), b.Manager.BatchesCommitted())
}
