package realtime

import "sync"

// LeaderClaim is one tab's bid for leadership of its device.
type LeaderClaim struct {
	TabID        string
	TabCreatedAt int64
}

// LeaderStrategy decides which of two claims wins. current is nil when the
// device has no leader yet.
type LeaderStrategy interface {
	Elect(current *LeaderClaim, incoming LeaderClaim) LeaderClaim
}

// OldestTabStrategy elects the tab with the earliest creation timestamp,
// breaking ties by tab id so concurrent claims converge on one winner.
type OldestTabStrategy struct{}

func (OldestTabStrategy) Elect(current *LeaderClaim, incoming LeaderClaim) LeaderClaim {
	if current == nil {
		return incoming
	}
	if incoming.TabCreatedAt < current.TabCreatedAt {
		return incoming
	}
	if incoming.TabCreatedAt == current.TabCreatedAt && incoming.TabID < current.TabID {
		return incoming
	}
	return *current
}

// leaderBoard tracks the elected leader per device room.
type leaderBoard struct {
	mu      sync.Mutex
	leaders map[string]*LeaderClaim
}

func newLeaderBoard() *leaderBoard {
	return &leaderBoard{leaders: make(map[string]*LeaderClaim)}
}

func (b *leaderBoard) elect(room string, strategy LeaderStrategy, claim LeaderClaim) LeaderClaim {
	b.mu.Lock()
	defer b.mu.Unlock()

	winner := strategy.Elect(b.leaders[room], claim)
	b.leaders[room] = &winner
	return winner
}

// forgetIf clears the room's leader only when the departing tab holds it, so
// a non-leader tab closing does not reset an established election.
func (b *leaderBoard) forgetIf(room, tabID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.leaders[room]
	if !ok || current.TabID != tabID {
		return false
	}

	delete(b.leaders, room)
	return true
}
