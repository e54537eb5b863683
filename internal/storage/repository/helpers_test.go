package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/vpn-shop/internal/migrations"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя
func (f *TestDataFactory) CreateUser(t *testing.T, telegramID int64, username string) {
	_, err := f.storage.DB.Exec(`INSERT INTO users (telegram_id, username, full_name) VALUES ($1, $2, $3)`,
		telegramID, username, "Test "+username)
	require.NoError(t, err)
}

// CreatePlan создает тестовый тариф
func (f *TestDataFactory) CreatePlan(t *testing.T, name string, price int64, days int, active bool) int {
	var id int
	err := f.storage.DB.QueryRow(`INSERT INTO plans (name, price, duration_days, limit_gb, is_active)
		VALUES ($1, $2, $3, 0, $4) RETURNING id`, name, price, days, active).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateSubscription создает тестовую подписку
func (f *TestDataFactory) CreateSubscription(t *testing.T, userID int64, expire time.Time, status models.SubscriptionStatus) {
	_, err := f.storage.DB.Exec(`INSERT INTO subscriptions (user_id, access_link, expire_date, status)
		VALUES ($1, $2, $3, $4)`, userID, "https://vpn.example.com/sub/test", expire, string(status))
	require.NoError(t, err)
}

// countSubscriptions возвращает число строк подписки пользователя
func countSubscriptions(t *testing.T, storage *Storage, userID int64) int {
	var count int
	err := storage.DB.QueryRow("SELECT COUNT(*) FROM subscriptions WHERE user_id = $1", userID).Scan(&count)
	require.NoError(t, err)
	return count
}

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err, "failed to create storage")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	// Сиды тарифов мешают точным проверкам
	_, err = storage.DB.Exec(`DELETE FROM plans`)
	require.NoError(t, err)

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}
