package bot

import (
	"sync"
	"time"
)

// pendingPurchase — выбранный тариф, для которого ждём скриншот чека.
type pendingPurchase struct {
	PlanID    int
	Amount    int64
	CreatedAt time.Time
}

// purchases хранит незавершённые покупки по Telegram ID.
// Покупка старше ttl считается брошенной.
type purchases struct {
	mu    sync.Mutex
	items map[int64]pendingPurchase
	ttl   time.Duration
	now   func() time.Time
}

func newPurchases(ttl time.Duration) *purchases {
	return &purchases{
		items: make(map[int64]pendingPurchase),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (p *purchases) put(userID int64, planID int, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[userID] = pendingPurchase{PlanID: planID, Amount: amount, CreatedAt: p.now()}
}

func (p *purchases) get(userID int64) (pendingPurchase, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[userID]
	if !ok {
		return pendingPurchase{}, false
	}
	if p.now().Sub(item.CreatedAt) > p.ttl {
		delete(p.items, userID)
		return pendingPurchase{}, false
	}
	return item, true
}

func (p *purchases) drop(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, userID)
}
