// Package vpnshop собирает приложение: хранилище, панель VPN, движок подписок,
// Telegram-бота, админ-консоль, шину уведомлений и планировщик проверки.
package vpnshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/vpn-shop/internal/bot"
	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/migrations"
	"github.com/magabrotheeeer/vpn-shop/internal/panel"
	"github.com/magabrotheeeer/vpn-shop/internal/services/auth"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
	"github.com/magabrotheeeer/vpn-shop/internal/services/notification"
	"github.com/magabrotheeeer/vpn-shop/internal/services/scheduler"
	"github.com/magabrotheeeer/vpn-shop/internal/services/storefront"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/cache"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	log       *slog.Logger
	server    *http.Server
	db        *repository.Storage
	cache     *cache.Cache
	bot       *bot.Bot
	scheduler *scheduler.Scheduler

	// Заполнены, только если настроен RabbitMQ.
	amqpConn   *amqp.Connection
	consumeCh  *amqp.Channel
	publishCh  *amqp.Channel
	dispatcher *notification.Dispatcher
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *App, err error) {
	const op = "vpnshop.New"

	app := &App{log: log}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	policy, err := entitlement.ParseRejectPolicy(cfg.Grant.RejectPolicy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app.db, err = repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(app.db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	if err = repository.CheckDatabaseReady(ctx, app.db); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Без Redis профиль читается из базы при каждом запросе.
	var (
		engineCache entitlement.Cache
		storeCache  storefront.Cache
	)
	if cfg.AddressRedis != "" {
		app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		engineCache, storeCache = app.cache, app.cache
	} else {
		log.Info("redis is not configured, profile cache disabled")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("%s: telegram: %w", op, err)
	}
	log.Info("authorized in telegram", slog.String("bot", botAPI.Self.UserName))
	if cfg.Telegram.AdminID == 0 {
		log.Warn("telegram admin_id is not set, receipts will not be forwarded for review")
	}

	app.dispatcher = notification.NewDispatcher(bot.NewMessenger(botAPI), cfg.Telegram.AdminID, log)
	notifier, err := app.setupNotifier(cfg.RabbitMQ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	panelClient := panel.New(cfg.Panel, log)
	if err := panelClient.Authenticate(ctx); err != nil {
		// Панель может подняться позже, клиент авторизуется при первом запросе.
		log.Warn("vpn panel is not reachable at startup", sl.Err(err))
	}

	engine := entitlement.New(app.db, panelClient, notifier, engineCache, log,
		entitlement.WithProvisionalWindow(cfg.Grant.ProvisionalWindow),
		entitlement.WithRejectPolicy(policy),
	)
	store := storefront.New(app.db, storeCache, log)
	app.scheduler = scheduler.New(engine, log, cfg.Sweep)
	app.bot = bot.New(botAPI, engine, store, cfg.Telegram, log)

	if cfg.JWTSecretKey == "" {
		log.Warn("jwt secret is not set, admin console login will fail")
	}
	authService := auth.New(cfg.Admin, jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL))

	router := chi.NewRouter()
	RegisterRoutes(router, log, cfg.HTTPServer, Deps{
		Auth:    authService,
		Engine:  engine,
		Ledger:  app.db,
		Users:   store,
		Sweeper: app.scheduler,
		DB:      app.db.DB,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return app, nil
}

// setupNotifier возвращает публикатор в RabbitMQ или, если шина не настроена,
// диспетчер, доставляющий уведомления в том же процессе.
func (a *App) setupNotifier(cfg config.RabbitMQ) (entitlement.Notifier, error) {
	if cfg.URL == "" {
		a.log.Info("rabbitmq is not configured, notifications are delivered in-process")
		return a.dispatcher, nil
	}

	conn, err := rabbitmq.Connect(cfg.URL, cfg.MaxRetries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	a.amqpConn = conn

	a.consumeCh, err = rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, err
	}
	a.publishCh, err = conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return notification.NewPublisher(a.publishCh), nil
}

// Run запускает бота, HTTP-сервер, потребителя уведомлений и планировщик.
// Ошибка любого из них останавливает остальные.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	defer func() {
		<-a.scheduler.Stop().Done()
		a.log.Info("scheduler stopped")
	}()

	g, gctx := errgroup.WithContext(ctx)

	if a.consumeCh != nil {
		if err := rabbitmq.ConsumerMessage(gctx, a.consumeCh, rabbitmq.NotificationQueue, a.log, a.dispatcher.Handle); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return a.bot.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.consumeCh != nil {
		_ = a.consumeCh.Close()
	}
	if a.publishCh != nil {
		_ = a.publishCh.Close()
	}
	if a.amqpConn != nil {
		if err := a.amqpConn.Close(); err != nil {
			a.log.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", sl.Err(err))
		}
	}
}
