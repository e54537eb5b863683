package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	floodRate  = rate.Limit(1)
	floodBurst = 5
	floodIdle  = 10 * time.Minute
)

type floodEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// floodGuard ограничивает частоту обновлений от одного пользователя.
// Записи без активности дольше floodIdle вычищаются при следующем вызове.
type floodGuard struct {
	mu     sync.Mutex
	users  map[int64]*floodEntry
	limit  rate.Limit
	burst  int
	lastGC time.Time
	now    func() time.Time
}

func newFloodGuard(limit rate.Limit, burst int) *floodGuard {
	return &floodGuard{
		users: make(map[int64]*floodEntry),
		limit: limit,
		burst: burst,
		now:   time.Now,
	}
}

func (g *floodGuard) allow(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastGC) > floodIdle {
		for id, e := range g.users {
			if now.Sub(e.lastSeen) > floodIdle {
				delete(g.users, id)
			}
		}
		g.lastGC = now
	}

	e, ok := g.users[userID]
	if !ok {
		e = &floodEntry{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
