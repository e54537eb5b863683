// Package config предоставляет структуры и функции для загрузки конфигурации
// бота: подключение к хранилищу, панели VPN, Telegram, RabbitMQ и планировщику.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Admin                   Admin    `yaml:"admin"`
	Panel                   Panel    `yaml:"panel"`
	Telegram                Telegram `yaml:"telegram"`
	Sweep                   Sweep    `yaml:"sweep"`
	RabbitMQ                RabbitMQ `yaml:"rabbitmq"`
	Grant                   Grant    `yaml:"grant"`
}

// HTTPServer структура для настройки админ-консоли.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кеш профиля.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// JWTToken структура для работы с jwt-токеном администратора.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"12h"`
}

// Admin учётные данные входа в админ-консоль.
type Admin struct {
	Username     string `yaml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
	PasswordHash string `yaml:"password_hash" env:"ADMIN_PASSWORD_HASH"`
}

// Panel настройки доступа к панели Marzban.
type Panel struct {
	Host               string        `yaml:"host" env:"PANEL_HOST" env-required:"true"`
	Username           string        `yaml:"username" env:"PANEL_USERNAME"`
	Password           string        `yaml:"password" env:"PANEL_PASSWORD"`
	Timeout            time.Duration `yaml:"timeout" env-default:"15s"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// Telegram настройки бота.
type Telegram struct {
	Token       string `yaml:"token" env:"BOT_TOKEN" env-required:"true"`
	AdminID     int64  `yaml:"admin_id" env:"ADMIN_ID"`
	PaymentInfo string `yaml:"payment_info" env:"PAYMENT_INFO" env-default:"Перевод по номеру телефона, реквизиты уточняйте у администратора"`
	PollTimeout int    `yaml:"poll_timeout" env-default:"60"`
}

// Sweep расписание проверки истёкших подписок.
type Sweep struct {
	Schedule string        `yaml:"schedule" env-default:"@every 1h"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10m"`
}

// RabbitMQ настройки шины уведомлений. Пустой URL — уведомления доставляются в процессе.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// Grant параметры выдачи доступа.
type Grant struct {
	ProvisionalWindow time.Duration `yaml:"provisional_window" env-default:"24h"`
	RejectPolicy      string        `yaml:"reject_policy" env-default:"disable"`
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if path == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"Panel:\n"+
			"  Host: %s\n"+
			"  Username: %s\n"+
			"  Password: %s\n"+
			"  Timeout: %s\n"+
			"Telegram:\n"+
			"  Token: %s\n"+
			"  AdminID: %d\n"+
			"Sweep:\n"+
			"  Schedule: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"Grant:\n"+
			"  ProvisionalWindow: %s\n"+
			"  RejectPolicy: %s\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.MigrationsPath,
		c.AddressRedis,
		mask(c.RedisConnection.Password),
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		mask(c.JWTSecretKey),
		c.TokenTTL,
		c.Panel.Host,
		c.Panel.Username,
		mask(c.Panel.Password),
		c.Panel.Timeout,
		mask(c.Telegram.Token),
		c.Telegram.AdminID,
		c.Sweep.Schedule,
		mask(c.RabbitMQ.URL),
		c.Grant.ProvisionalWindow,
		c.Grant.RejectPolicy,
	)
}
