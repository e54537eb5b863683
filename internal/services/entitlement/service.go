// Package entitlement — движок выдачи доступа к VPN. Он решает, до какой даты
// и с каким лимитом трафика открыть доступ, держит локальный реестр
// (транзакции, подписки) согласованным с панелью и периодически отключает
// истёкшие подписки.
//
// Панель считается источником истины для доступа. Все изменения одного
// пользователя (чтение панели, расчёт, запись в панель, запись в реестр)
// выполняются под блокировкой по его Telegram ID.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/expiry"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/keylock"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/metrics"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/panel"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/cache"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

var (
	// ErrRemoteUnavailable возвращается, если панель недоступна или отказала.
	ErrRemoteUnavailable = errors.New("remote panel unavailable")
	// ErrNotFound: транзакция или пользователь не найдены.
	ErrNotFound = errors.New("not found")
	// ErrPlanNotFound: тарифа нет или он отключён.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrAlreadyProcessed возвращается для уже одобренной или отклонённой транзакции.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	ErrValidation = errors.New("validation failed")
	ErrBanned     = errors.New("user is banned")

	// ErrTrialUnavailable: пробный период уже использован.
	ErrTrialUnavailable = errors.New("trial unavailable")
)

// Ledger описывает локальный реестр пользователей, тарифов, транзакций и подписок.
type Ledger interface {
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	SetBanned(ctx context.Context, telegramID int64, banned bool) error
	GetPlan(ctx context.Context, id int) (*models.Plan, error)
	CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	// ApproveTransaction атомарно переводит pending -> approved и записывает подписку.
	ApproveTransaction(ctx context.Context, id int64, sub models.Subscription, at time.Time) error
	RejectTransaction(ctx context.Context, id int64, at time.Time) error
	GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	// RecordProvisionalGrant запоминает на транзакции выданный временный доступ
	// и записывает подписку одной транзакцией БД.
	RecordProvisionalGrant(ctx context.Context, txID int64, sub models.Subscription) error
	ListExpiredActive(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	// ExpireSubscription возвращает false, если подписка уже не активна или продлена.
	ExpireSubscription(ctx context.Context, userID int64, now time.Time) (bool, error)
	DeactivateSubscription(ctx context.Context, userID int64) error
}

// Panel описывает клиент панели VPN.
type Panel interface {
	Get(ctx context.Context, username string) (*models.Entitlement, error)
	Upsert(ctx context.Context, username string, quotaGB int64, expire time.Time) (*models.Entitlement, error)
	Modify(ctx context.Context, username string, patch models.EntitlementPatch) error
}

// Notifier доставляет события пользователям и администратору.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Cache — кеш профиля, который нужно сбрасывать после изменений.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// RejectPolicy определяет, что делать с доступом после отклонения чека.
type RejectPolicy string

const (
	// RejectFlag только помечает транзакцию отклонённой.
	RejectFlag RejectPolicy = "flag"
	// RejectDisable снимает временный доступ, выданный по отклонённому чеку.
	// Если оплаченного времени не остаётся, пользователь отключается в панели.
	RejectDisable RejectPolicy = "disable"
	// RejectDisableAndBan отключает пользователя и блокирует его в боте.
	RejectDisableAndBan RejectPolicy = "disable_and_ban"
)

// ParseRejectPolicy разбирает значение из конфига.
func ParseRejectPolicy(s string) (RejectPolicy, error) {
	switch p := RejectPolicy(s); p {
	case RejectFlag, RejectDisable, RejectDisableAndBan:
		return p, nil
	case "":
		return RejectDisable, nil
	default:
		return "", fmt.Errorf("unknown reject policy %q", s)
	}
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithProvisionalWindow задаёт срок временного доступа до проверки чека.
func WithProvisionalWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.provisionalWindow = d
		}
	}
}

// WithRejectPolicy задаёт политику отклонения.
func WithRejectPolicy(p RejectPolicy) Option {
	return func(s *Service) { s.rejectPolicy = p }
}

// Service реализует операции движка подписок.
type Service struct {
	ledger   Ledger
	panel    Panel
	notifier Notifier
	cache    Cache
	log      *slog.Logger

	locks    *keylock.Locker
	validate *validator.Validate

	now               func() time.Time
	provisionalWindow time.Duration
	rejectPolicy      RejectPolicy
}

// New создаёт движок. cache может быть nil, если Redis не настроен.
func New(ledger Ledger, panel Panel, notifier Notifier, cache Cache, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:            ledger,
		panel:             panel,
		notifier:          notifier,
		cache:             cache,
		log:               log,
		locks:             keylock.New(),
		validate:          validator.New(),
		now:               time.Now,
		provisionalWindow: 24 * time.Hour,
		rejectPolicy:      RejectDisable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// provision читает текущий доступ в панели, продлевает его на term и
// записывает обратно с лимитом quotaGB.
func (s *Service) provision(ctx context.Context, userID int64, term time.Duration, quotaGB int64) (*models.Entitlement, time.Time, error) {
	username := models.PanelUsername(userID)

	var remoteExpire *time.Time
	current, err := s.panel.Get(ctx, username)
	switch {
	case err == nil:
		remoteExpire = expiry.FromEpoch(current.Expire)
	case errors.Is(err, panel.ErrNotFound):
	default:
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	newExpire := expiry.NewExpiry(remoteExpire, s.now(), term)
	ent, err := s.panel.Upsert(ctx, username, quotaGB, newExpire)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return ent, newExpire, nil
}

// activeUser проверяет, что пользователь зарегистрирован и не заблокирован.
func (s *Service) activeUser(ctx context.Context, userID int64) error {
	user, err := s.ledger.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if user.IsBanned {
		return ErrBanned
	}
	return nil
}

// pendingTransaction загружает транзакцию и проверяет, что её ещё не обработали.
func (s *Service) pendingTransaction(ctx context.Context, txID int64) (*models.Transaction, error) {
	tx, err := s.ledger.GetTransaction(ctx, txID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.Status != models.TransactionPending {
		return nil, ErrAlreadyProcessed
	}
	return tx, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.SubscriptionKey(userID)); err != nil {
		s.log.Warn("failed to invalidate profile cache", sl.User(userID), sl.Err(err))
	}
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Error("failed to send notification",
			slog.String("kind", string(n.Kind)), sl.User(n.UserID), sl.Err(err))
	}
}

func observe(op string, err error) {
	metrics.EntitlementOperations.WithLabelValues(op, metrics.Result(err)).Inc()
}
