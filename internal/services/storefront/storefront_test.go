package storefront

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/cache"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) SetBanned(ctx context.Context, telegramID int64, banned bool) error {
	return m.Called(ctx, telegramID, banned).Error(0)
}

func (m *RepoMock) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Plan), args.Error(1)
}

func (m *RepoMock) GetPlan(ctx context.Context, id int) (*models.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

func (m *RepoMock) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newRedisCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestService_EnsureUser(t *testing.T) {
	repo := new(RepoMock)
	user := models.User{TelegramID: 7, Username: "ivan", FullName: "Иван"}
	repo.On("UpsertUser", mock.Anything, user).Return(&models.User{TelegramID: 7, Username: "ivan", FullName: "Иван"}, nil).Once()
	repo.On("UpsertUser", mock.Anything, models.User{TelegramID: 8}).Return(nil, errors.New("db down")).Once()

	s := New(repo, nil, newNoopLogger())

	saved, err := s.EnsureUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(7), saved.TelegramID)

	_, err = s.EnsureUser(context.Background(), models.User{TelegramID: 8})
	require.Error(t, err)
	repo.AssertExpectations(t)
}

func TestService_Plan(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(r *RepoMock)
		wantErr   error
		wantID    int
	}{
		{
			name: "active plan",
			setupMock: func(r *RepoMock) {
				r.On("GetPlan", mock.Anything, 2).Return(&models.Plan{ID: 2, IsActive: true}, nil).Once()
			},
			wantID: 2,
		},
		{
			name: "inactive plan is hidden",
			setupMock: func(r *RepoMock) {
				r.On("GetPlan", mock.Anything, 2).Return(&models.Plan{ID: 2, IsActive: false}, nil).Once()
			},
			wantErr: ErrNotFound,
		},
		{
			name: "missing plan",
			setupMock: func(r *RepoMock) {
				r.On("GetPlan", mock.Anything, 2).Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMock(repo)
			s := New(repo, nil, newNoopLogger())

			plan, err := s.Plan(context.Background(), 2)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, plan.ID)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_ActivePlans(t *testing.T) {
	repo := new(RepoMock)
	plans := []*models.Plan{{ID: 1, Name: "Пробный период"}, {ID: 2, Name: "1 месяц", Price: 200}}
	repo.On("ListActivePlans", mock.Anything).Return(plans, nil).Once()

	got, err := New(repo, nil, newNoopLogger()).ActivePlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plans, got)
}

func TestService_Profile_Cached(t *testing.T) {
	c, mr := newRedisCache(t)
	repo := new(RepoMock)
	expire := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	repo.On("GetSubscription", mock.Anything, int64(7)).Return(&models.Subscription{
		UserID: 7, Status: models.SubscriptionActive, ExpireDate: expire, AccessLink: "https://panel/sub/x",
	}, nil).Once()

	s := New(repo, c, newNoopLogger())

	first, err := s.Profile(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, first.HasSubscription)
	assert.True(t, first.Active(expire.Add(-time.Hour)))
	assert.False(t, first.Active(expire.Add(time.Hour)))
	assert.True(t, mr.Exists(cache.SubscriptionKey(7)))

	second, err := s.Profile(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, first.AccessLink, second.AccessLink)
	assert.True(t, first.ExpireDate.Equal(second.ExpireDate))

	repo.AssertNumberOfCalls(t, "GetSubscription", 1)
}

func TestService_Profile_NoSubscription(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, int64(9)).Return(nil, repository.ErrNotFound).Once()

	p, err := New(repo, nil, newNoopLogger()).Profile(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, p.HasSubscription)
	assert.False(t, p.Active(time.Now()))
}

func TestService_Profile_CacheDown(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.Close()

	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, int64(7)).Return(nil, repository.ErrNotFound).Once()

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{}))

	p, err := New(repo, c, log).Profile(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, p.HasSubscription)

	out := logs.String()
	assert.Contains(t, out, "failed to read profile from cache")
	assert.Contains(t, out, "failed to add profile to cache")
	assert.Contains(t, out, "error=")
	assert.NotContains(t, out, "err=")
}

func TestService_Profile_RepoError(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, int64(7)).Return(nil, errors.New("db down")).Once()

	_, err := New(repo, nil, newNoopLogger()).Profile(context.Background(), 7)
	require.Error(t, err)
}

func TestService_BanUnban(t *testing.T) {
	repo := new(RepoMock)
	repo.On("SetBanned", mock.Anything, int64(7), true).Return(nil).Once()
	repo.On("SetBanned", mock.Anything, int64(7), false).Return(nil).Once()
	repo.On("SetBanned", mock.Anything, int64(8), true).Return(repository.ErrNotFound).Once()

	s := New(repo, nil, newNoopLogger())
	require.NoError(t, s.Ban(context.Background(), 7))
	require.NoError(t, s.Unban(context.Background(), 7))
	assert.ErrorIs(t, s.Ban(context.Background(), 8), ErrNotFound)
	repo.AssertExpectations(t)
}
