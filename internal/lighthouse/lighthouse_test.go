package lighthouse

import (
	"context"
	"testing"
	"time"

	"replicaft/internal/api"
)

func newTestServer(t *testing.T, minReplicas int, heartbeatTimeout time.Duration) *Server {
	t.Helper()
	srv, err := NewServer(Options{
		Bind:             "127.0.0.1:0",
		MinReplicas:      minReplicas,
		JoinTimeout:      100 * time.Millisecond,
		HeartbeatTimeout: heartbeatTimeout,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func dialTest(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestQuorum_SingleReplica(t *testing.T) {
	srv := newTestServer(t, 1, time.Second)
	client := dialTest(t, srv.Addr())

	q, err := client.Quorum(context.Background(), api.QuorumMember{
		ReplicaID:    "rep0",
		StoreAddress: "127.0.0.1:1234",
		Step:         0,
		WorldSize:    1,
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("Quorum failed: %v", err)
	}

	if q.QuorumID != 1 {
		t.Errorf("Expected quorum id 1, got %d", q.QuorumID)
	}
	if len(q.Participants) != 1 || q.Participants[0].ReplicaID != "rep0" {
		t.Errorf("Unexpected participants: %+v", q.Participants)
	}
}

func TestQuorum_TwoReplicasSorted(t *testing.T) {
	srv := newTestServer(t, 2, time.Second)
	c1 := dialTest(t, srv.Addr())
	c2 := dialTest(t, srv.Addr())

	type result struct {
		q   api.Quorum
		err error
	}
	results := make(chan result, 2)
	join := func(c *Client, id string) {
		q, err := c.Quorum(context.Background(), api.QuorumMember{ReplicaID: id, WorldSize: 1}, 3*time.Second)
		results <- result{q, err}
	}
	go join(c1, "zeta")
	go join(c2, "alpha")

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("Quorum failed: %v", r.err)
		}
		if len(r.q.Participants) != 2 {
			t.Fatalf("Expected 2 participants, got %d", len(r.q.Participants))
		}
		if r.q.Participants[0].ReplicaID != "alpha" || r.q.Participants[1].ReplicaID != "zeta" {
			t.Errorf("Participants not sorted: %+v", r.q.Participants)
		}
	}
}

func TestQuorum_TimesOutBelowMinReplicas(t *testing.T) {
	srv := newTestServer(t, 2, time.Second)
	client := dialTest(t, srv.Addr())

	_, err := client.Quorum(context.Background(), api.QuorumMember{ReplicaID: "lonely"}, 300*time.Millisecond)
	if err == nil {
		t.Fatal("Expected quorum to time out with one of two replicas")
	}
}

func TestQuorum_ShrinkOnlyExcludesNewJoiner(t *testing.T) {
	srv := newTestServer(t, 1, 200*time.Millisecond)
	c1 := dialTest(t, srv.Addr())

	// First quorum with just rep0.
	q, err := c1.Quorum(context.Background(), api.QuorumMember{ReplicaID: "rep0"}, 2*time.Second)
	if err != nil {
		t.Fatalf("First quorum failed: %v", err)
	}
	if len(q.Participants) != 1 {
		t.Fatalf("Expected 1 participant, got %d", len(q.Participants))
	}

	// A new replica tries to join while rep0 requests shrink-only.
	c2 := dialTest(t, srv.Addr())
	joined := make(chan error, 1)
	go func() {
		_, err := c2.Quorum(context.Background(), api.QuorumMember{ReplicaID: "rep1"}, 400*time.Millisecond)
		joined <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q2, err := c1.Quorum(context.Background(), api.QuorumMember{ReplicaID: "rep0", ShrinkOnly: true}, 2*time.Second)
	if err != nil {
		t.Fatalf("Shrink-only quorum failed: %v", err)
	}
	if len(q2.Participants) != 1 || q2.Participants[0].ReplicaID != "rep0" {
		t.Errorf("Shrink-only quorum should exclude rep1: %+v", q2.Participants)
	}
	if q2.QuorumID != q.QuorumID {
		t.Errorf("Expected quorum id %d to be kept for unchanged participants, got %d", q.QuorumID, q2.QuorumID)
	}

	if err := <-joined; err == nil {
		t.Error("Expected excluded joiner to time out")
	}
}

func TestQuorum_IDAdvancesOnMembershipChange(t *testing.T) {
	srv := newTestServer(t, 1, 100*time.Millisecond)
	c1 := dialTest(t, srv.Addr())

	q1, err := c1.Quorum(context.Background(), api.QuorumMember{ReplicaID: "rep0", Step: 0}, 2*time.Second)
	if err != nil {
		t.Fatalf("First quorum failed: %v", err)
	}

	// Same member at a later step keeps its quorum id.
	q2, err := c1.Quorum(context.Background(), api.QuorumMember{ReplicaID: "rep0", Step: 1}, 2*time.Second)
	if err != nil {
		t.Fatalf("Second quorum failed: %v", err)
	}
	if q2.QuorumID != q1.QuorumID {
		t.Errorf("Expected quorum id %d to be kept, got %d", q1.QuorumID, q2.QuorumID)
	}

	// A second replica joining changes the set and advances the id.
	results := make(chan api.Quorum, 2)
	errs := make(chan error, 2)
	for _, id := range []string{"rep0", "rep1"} {
		go func(id string) {
			q, err := c1.Quorum(context.Background(), api.QuorumMember{ReplicaID: id, Step: 2}, 2*time.Second)
			results <- q
			errs <- err
		}(id)
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Joint quorum failed: %v", err)
		}
	}
	q3 := <-results
	if q3.QuorumID != q1.QuorumID+1 {
		t.Errorf("Expected quorum id to advance to %d, got %d", q1.QuorumID+1, q3.QuorumID)
	}
}

func TestSubscribeFailures_HeartbeatTimeout(t *testing.T) {
	srv := newTestServer(t, 1, 100*time.Millisecond)
	client := dialTest(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := client.SubscribeFailures(ctx)
	if err != nil {
		t.Fatalf("SubscribeFailures failed: %v", err)
	}

	if err := client.Heartbeat(context.Background(), "doomed"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	type recv struct {
		note *api.FailureNotification
		err  error
	}
	got := make(chan recv, 1)
	go func() {
		note, err := stream.Recv()
		got <- recv{note, err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("Recv failed: %v", r.err)
		}
		if r.note.ReplicaID != "doomed" {
			t.Errorf("Expected failure for doomed, got %+v", r.note)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for failure notification")
	}
}

func TestMembership_ReviveAfterDeath(t *testing.T) {
	m := NewMembership(50 * time.Millisecond)
	m.Start()
	defer m.Stop()

	m.Heartbeat("rep0")
	_, ch := m.Subscribe()

	select {
	case id := <-ch:
		if id != "rep0" {
			t.Fatalf("Expected rep0 failure, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for failure")
	}

	m.Heartbeat("rep0")
	found := false
	for _, id := range m.AliveIDs() {
		if id == "rep0" {
			found = true
		}
	}
	if !found {
		t.Error("Expected rep0 alive after new heartbeat")
	}
}
