// Package storefront содержит операции витрины, которые не меняют доступ:
// регистрацию пользователей, каталог тарифов, профиль с кешированием и блокировку.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/cache"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

// ErrNotFound — пользователь или тариф не найдены.
var ErrNotFound = errors.New("not found")

const profileTTL = 10 * time.Minute

// Repository определяет методы хранилища, нужные витрине.
type Repository interface {
	// UpsertUser создаёт пользователя или обновляет его имена.
	UpsertUser(ctx context.Context, user models.User) (*models.User, error)
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	SetBanned(ctx context.Context, telegramID int64, banned bool) error
	// ListActivePlans возвращает тарифы, доступные для покупки, по возрастанию цены.
	ListActivePlans(ctx context.Context) ([]*models.Plan, error)
	GetPlan(ctx context.Context, id int) (*models.Plan, error)
	GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Cache описывает методы для кеширования профиля.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// Profile — состояние доступа пользователя для показа в боте.
type Profile struct {
	HasSubscription bool                      `json:"has_subscription"`
	Status          models.SubscriptionStatus `json:"status,omitempty"`
	ExpireDate      time.Time                 `json:"expire_date"`
	AccessLink      string                    `json:"access_link,omitempty"`
}

// Active сообщает, действует ли доступ на момент now.
func (p Profile) Active(now time.Time) bool {
	return p.HasSubscription && p.Status == models.SubscriptionActive && p.ExpireDate.After(now)
}

// Service реализует операции витрины. Кеш может быть nil.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// EnsureUser регистрирует пользователя при первом обращении и обновляет его имена.
func (s *Service) EnsureUser(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storefront.EnsureUser"

	saved, err := s.repo.UpsertUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// ActivePlans возвращает каталог тарифов.
func (s *Service) ActivePlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storefront.ActivePlans"

	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// Plan возвращает тариф по ID. Отключённый тариф считается отсутствующим.
func (s *Service) Plan(ctx context.Context, id int) (*models.Plan, error) {
	const op = "storefront.Plan"

	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return plan, nil
}

// Profile возвращает профиль пользователя, используя кеш или хранилище.
func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	const op = "storefront.Profile"
	key := cache.SubscriptionKey(userID)

	if s.cache != nil {
		var cached Profile
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read profile from cache", slog.String("key", key), sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	var profile Profile
	sub, err := s.repo.GetSubscription(ctx, userID)
	switch {
	case err == nil:
		profile = Profile{
			HasSubscription: true,
			Status:          sub.Status,
			ExpireDate:      sub.ExpireDate,
			AccessLink:      sub.AccessLink,
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, profile, profileTTL); err != nil {
			s.log.Warn("failed to add profile to cache", slog.String("key", key), sl.Err(err))
		}
	}
	return &profile, nil
}

// Ban блокирует пользователя. Уже выданный доступ не отзывается.
func (s *Service) Ban(ctx context.Context, userID int64) error {
	return s.setBanned(ctx, "storefront.Ban", userID, true)
}

// Unban снимает блокировку.
func (s *Service) Unban(ctx context.Context, userID int64) error {
	return s.setBanned(ctx, "storefront.Unban", userID, false)
}

func (s *Service) setBanned(ctx context.Context, op string, userID int64, banned bool) error {
	if err := s.repo.SetBanned(ctx, userID, banned); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user ban status changed", slog.Int64("user_id", userID), slog.Bool("banned", banned))
	return nil
}
