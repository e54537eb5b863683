package entitlement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/panel"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func epoch(t time.Time) *int64 {
	v := t.Unix()
	return &v
}

type LedgerMock struct{ mock.Mock }

func (m *LedgerMock) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *LedgerMock) SetBanned(ctx context.Context, id int64, banned bool) error {
	return m.Called(ctx, id, banned).Error(0)
}
func (m *LedgerMock) GetPlan(ctx context.Context, id int) (*models.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}
func (m *LedgerMock) CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *LedgerMock) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *LedgerMock) ApproveTransaction(ctx context.Context, id int64, sub models.Subscription, at time.Time) error {
	return m.Called(ctx, id, sub, at).Error(0)
}
func (m *LedgerMock) RejectTransaction(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}
func (m *LedgerMock) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *LedgerMock) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *LedgerMock) RecordProvisionalGrant(ctx context.Context, txID int64, sub models.Subscription) error {
	return m.Called(ctx, txID, sub).Error(0)
}
func (m *LedgerMock) ListExpiredActive(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}
func (m *LedgerMock) ExpireSubscription(ctx context.Context, userID int64, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, now)
	return args.Bool(0), args.Error(1)
}
func (m *LedgerMock) DeactivateSubscription(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

type PanelMock struct{ mock.Mock }

func (m *PanelMock) Get(ctx context.Context, username string) (*models.Entitlement, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entitlement), args.Error(1)
}
func (m *PanelMock) Upsert(ctx context.Context, username string, quotaGB int64, expire time.Time) (*models.Entitlement, error) {
	args := m.Called(ctx, username, quotaGB, expire)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entitlement), args.Error(1)
}
func (m *PanelMock) Modify(ctx context.Context, username string, patch models.EntitlementPatch) error {
	return m.Called(ctx, username, patch).Error(0)
}

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) Notify(ctx context.Context, n models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// fakeLedger — реестр в памяти с теми же условными переходами, что и PostgreSQL.
type fakeLedger struct {
	mu    sync.Mutex
	users map[int64]*models.User
	plans map[int]*models.Plan
	txs   map[int64]*models.Transaction
	subs  map[int64]*models.Subscription
	next  int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users: map[int64]*models.User{},
		plans: map[int]*models.Plan{},
		txs:   map[int64]*models.Transaction{},
		subs:  map[int64]*models.Subscription{},
	}
}

func (f *fakeLedger) GetUser(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", repository.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeLedger) SetBanned(_ context.Context, id int64, banned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsBanned = banned
	return nil
}

func (f *fakeLedger) GetPlan(_ context.Context, id int) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLedger) CreateTransaction(_ context.Context, tx models.Transaction) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	tx.ID = f.next
	tx.Status = models.TransactionPending
	f.txs[tx.ID] = &tx
	cp := tx
	return &cp, nil
}

func (f *fakeLedger) GetTransaction(_ context.Context, id int64) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeLedger) finish(id int64, status models.TransactionStatus, at time.Time) error {
	tx, ok := f.txs[id]
	if !ok || tx.Status != models.TransactionPending {
		return repository.ErrAlreadyProcessed
	}
	tx.Status = status
	tx.ProcessedAt = &at
	return nil
}

func (f *fakeLedger) ApproveTransaction(_ context.Context, id int64, sub models.Subscription, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.finish(id, models.TransactionApproved, at); err != nil {
		return err
	}
	f.upsert(sub)
	return nil
}

func (f *fakeLedger) RejectTransaction(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finish(id, models.TransactionRejected, at)
}

func (f *fakeLedger) GetSubscription(_ context.Context, userID int64) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeLedger) upsert(sub models.Subscription) {
	if old, ok := f.subs[sub.UserID]; ok && sub.AccessLink == "" {
		sub.AccessLink = old.AccessLink
	}
	f.subs[sub.UserID] = &sub
}

func (f *fakeLedger) UpsertSubscription(_ context.Context, sub models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsert(sub)
	return nil
}

func (f *fakeLedger) RecordProvisionalGrant(_ context.Context, txID int64, sub models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txID]
	if !ok {
		return repository.ErrNotFound
	}
	until := sub.ExpireDate
	tx.ProvisionalUntil = &until
	f.upsert(sub)
	return nil
}

func (f *fakeLedger) ListExpiredActive(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Subscription
	for _, sub := range f.subs {
		if sub.Status == models.SubscriptionActive && sub.ExpireDate.Before(now) {
			cp := *sub
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (f *fakeLedger) ExpireSubscription(_ context.Context, userID int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok || sub.Status != models.SubscriptionActive || !sub.ExpireDate.Before(now) {
		return false, nil
	}
	sub.Status = models.SubscriptionExpired
	return true, nil
}

func (f *fakeLedger) DeactivateSubscription(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[userID]; ok {
		sub.Status = models.SubscriptionExpired
	}
	return nil
}

// fakePanel — панель в памяти, считает вызовы.
type fakePanel struct {
	mu       sync.Mutex
	users    map[string]*models.Entitlement
	modifies int
	upserts  int
	fail     map[string]error
}

func newFakePanel() *fakePanel {
	return &fakePanel{users: map[string]*models.Entitlement{}, fail: map[string]error{}}
}

func (p *fakePanel) Get(_ context.Context, username string) (*models.Entitlement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ent, ok := p.users[username]
	if !ok {
		return nil, fmt.Errorf("panel.Get: %w", panel.ErrNotFound)
	}
	cp := *ent
	return &cp, nil
}

func (p *fakePanel) Upsert(_ context.Context, username string, quotaGB int64, expire time.Time) (*models.Entitlement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upserts++
	ent := &models.Entitlement{
		Username:        username,
		Status:          models.EntitlementActive,
		Expire:          epoch(expire),
		DataLimit:       panel.GBToBytes(quotaGB),
		SubscriptionURL: "https://vpn.example.com/sub/" + username,
	}
	p.users[username] = ent
	cp := *ent
	return &cp, nil
}

func (p *fakePanel) Modify(_ context.Context, username string, patch models.EntitlementPatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modifies++
	if err := p.fail[username]; err != nil {
		return err
	}
	ent, ok := p.users[username]
	if !ok {
		return fmt.Errorf("panel.Modify: %w", panel.ErrNotFound)
	}
	if patch.Expire != nil {
		ent.Expire = patch.Expire
	}
	if patch.DataLimit != nil {
		ent.DataLimit = *patch.DataLimit
	}
	if patch.Status != nil {
		ent.Status = *patch.Status
	}
	return nil
}

func (p *fakePanel) modifyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifies
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) error { return nil }
