package lighthouse

import (
	"context"
	"log"
	"sync"
	"time"
)

// MemberStatus represents the liveness state of a tracked replica.
type MemberStatus int

const (
	Alive MemberStatus = iota
	Dead
)

// String returns the string representation of MemberStatus.
func (s MemberStatus) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Member is one replica group known to the lighthouse.
type Member struct {
	ID       string
	Status   MemberStatus
	LastSeen time.Time
}

// Membership tracks replica liveness from heartbeats and notifies
// subscribers when a member misses its heartbeat deadline.
type Membership struct {
	mu               sync.Mutex
	members          map[string]*Member
	heartbeatTimeout time.Duration

	subscribers map[int]chan string
	nextSubID   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMembership creates a membership tracker.
func NewMembership(heartbeatTimeout time.Duration) *Membership {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Membership{
		members:          make(map[string]*Member),
		heartbeatTimeout: heartbeatTimeout,
		subscribers:      make(map[int]chan string),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start launches the heartbeat deadline checker.
func (m *Membership) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		interval := m.heartbeatTimeout / 4
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.checkDeadlines()
			}
		}
	}()
}

// Stop stops the checker loop.
func (m *Membership) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Heartbeat records a heartbeat from id, reviving it if it was dead.
func (m *Membership) Heartbeat(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, exists := m.members[id]
	if !exists {
		m.members[id] = &Member{ID: id, Status: Alive, LastSeen: time.Now()}
		log.Printf("[lighthouse] New member: %s", id)
		return
	}
	if member.Status == Dead {
		log.Printf("[lighthouse] Member %s is ALIVE again", id)
	}
	member.Status = Alive
	member.LastSeen = time.Now()
}

// Forget removes a member entirely, without raising a failure.
func (m *Membership) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, id)
}

// AliveIDs returns the ids of members currently considered alive.
func (m *Membership) AliveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.members))
	for id, member := range m.members {
		if member.Status == Alive {
			ids = append(ids, id)
		}
	}
	return ids
}

// Subscribe returns a channel of failed replica ids. The channel is
// buffered; notifications are dropped rather than blocking the checker
// if the subscriber falls behind.
func (m *Membership) Subscribe() (int, <-chan string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan string, 16)
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber.
func (m *Membership) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}

func (m *Membership) checkDeadlines() {
	now := time.Now()
	var failed []string

	m.mu.Lock()
	for id, member := range m.members {
		if member.Status == Alive && now.Sub(member.LastSeen) > m.heartbeatTimeout {
			member.Status = Dead
			failed = append(failed, id)
			log.Printf("[lighthouse] Marked %s as DEAD (heartbeat timeout)", id)
		}
	}
	for _, id := range failed {
		for _, ch := range m.subscribers {
			select {
			case ch <- id:
			default:
			}
		}
	}
	m.mu.Unlock()
}
