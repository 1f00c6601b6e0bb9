package closing

import "sync"

// CommitGuard allows one in-flight commit per key across the process.
type CommitGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCommitGuard() *CommitGuard {
	return &CommitGuard{inFlight: make(map[string]struct{})}
}

// TryAcquire returns a release func, or false when key is already held.
func (g *CommitGuard) TryAcquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[key]; busy {
		return nil, false
	}
	g.inFlight[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.inFlight, key)
		g.mu.Unlock()
	}, true
}

func CommitKey(staffID, outletID, dayKey string) string {
	return staffID + "|" + outletID + "|" + dayKey
}
