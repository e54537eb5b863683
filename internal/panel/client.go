// Package panel реализует HTTP-клиент панели Marzban: получение токена
// администратора, чтение, создание или продление, частичное изменение
// и удаление пользователей VPN.
//
// Клиент создаётся один раз при старте и передаётся в движок подписок.
// Токен кешируется внутри клиента; при ответе 401 клиент один раз
// получает новый токен и повторяет операцию.
package panel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/metrics"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

var (
	// ErrNotFound — пользователя нет в панели.
	ErrNotFound = errors.New("entitlement not found")
	// ErrAuth — панель отклонила учётные данные администратора.
	ErrAuth = errors.New("panel authentication failed")
	// ErrUnavailable — панель недоступна или ответила ошибкой.
	ErrUnavailable = errors.New("panel unavailable")

	errUnauthorized = errors.New("panel token rejected")
)

// StatusError — неожиданный HTTP-статус от панели.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrUnavailable).
func (e *StatusError) Unwrap() error {
	return ErrUnavailable
}

const bytesPerGB = 1024 * 1024 * 1024

// GBToBytes переводит лимит тарифа в байты панели. 0 остаётся безлимитом.
func GBToBytes(gb int64) int64 {
	if gb <= 0 {
		return 0
	}
	return gb * bytesPerGB
}

// Client — клиент панели Marzban.
type Client struct {
	host       string
	username   string
	password   string
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.Mutex
	token string
}

// New создаёт клиент панели по настройкам из конфига.
func New(cfg config.Panel, log *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed panels
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		host:       strings.TrimSuffix(cfg.Host, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		log:        log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Authenticate получает токен администратора и сохраняет его в клиенте.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.authenticate(ctx)
	return err
}

// authenticate возвращает полученный токен: сохранённый в клиенте может
// успеть сбросить параллельный запрос.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	const op = "panel.Authenticate"

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/admin/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("token", err)
		return "", fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%s: %w: status %d", op, ErrAuth, resp.StatusCode)
		c.observe("token", err)
		return "", err
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%s: decode token: %w", op, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%s: %w: empty access token", op, ErrAuth)
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.mu.Unlock()
	c.observe("token", nil)
	return tr.AccessToken, nil
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.authenticate(ctx)
}

// invalidate сбрасывает токен, если его ещё не обновил другой запрос.
func (c *Client) invalidate(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

// withAuthRetry выполняет call и при отказе в токене повторяет его ровно один раз
// с новым токеном. Повторный отказ считается недоступностью панели.
func withAuthRetry[T any](ctx context.Context, c *Client, call func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T

	token, err := c.currentToken(ctx)
	if err != nil {
		return zero, err
	}
	res, err := call(ctx, token)
	if !errors.Is(err, errUnauthorized) {
		return res, err
	}

	c.log.Info("panel token expired, re-authenticating")
	c.invalidate(token)
	token, err = c.currentToken(ctx)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	res, err = call(ctx, token)
	if errors.Is(err, errUnauthorized) {
		return zero, fmt.Errorf("%w: %w", ErrUnavailable, ErrAuth)
	}
	return res, err
}

func (c *Client) do(ctx context.Context, token, method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

func userPath(username string) string {
	return "/api/user/" + url.PathEscape(username)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (c *Client) decodeEntitlement(resp *http.Response) (*models.Entitlement, error) {
	var ent models.Entitlement
	if err := json.NewDecoder(resp.Body).Decode(&ent); err != nil {
		return nil, fmt.Errorf("decode entitlement: %w", err)
	}
	c.absoluteLink(&ent)
	return &ent, nil
}

// absoluteLink превращает относительную ссылку подписки (/sub/...) в абсолютную.
func (c *Client) absoluteLink(ent *models.Entitlement) {
	if strings.HasPrefix(ent.SubscriptionURL, "/") {
		ent.SubscriptionURL = c.host + ent.SubscriptionURL
	}
}

func (c *Client) observe(op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	metrics.PanelRequests.WithLabelValues(op, result).Inc()
}

// Get возвращает пользователя панели или ErrNotFound.
func (c *Client) Get(ctx context.Context, username string) (*models.Entitlement, error) {
	const op = "panel.Get"

	ent, err := withAuthRetry(ctx, c, func(ctx context.Context, token string) (*models.Entitlement, error) {
		resp, err := c.do(ctx, token, http.MethodGet, userPath(username), nil)
		if err != nil {
			return nil, err
		}
		defer drain(resp)

		switch resp.StatusCode {
		case http.StatusOK:
			return c.decodeEntitlement(resp)
		case http.StatusNotFound:
			return nil, ErrNotFound
		case http.StatusUnauthorized:
			return nil, errUnauthorized
		default:
			return nil, &StatusError{Op: op, Code: resp.StatusCode}
		}
	})
	c.observe("get", err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ent, nil
}

type userPayload struct {
	Username  string                    `json:"username"`
	Proxies   map[string]map[string]any `json:"proxies"`
	DataLimit int64                     `json:"data_limit"`
	Expire    int64                     `json:"expire"`
	Status    string                    `json:"status"`
}

// Upsert создаёт пользователя панели, а если он уже существует (409) —
// обновляет его тем же набором полей. quotaGB 0 означает безлимит.
func (c *Client) Upsert(ctx context.Context, username string, quotaGB int64, expire time.Time) (*models.Entitlement, error) {
	const op = "panel.Upsert"

	payload := userPayload{
		Username:  username,
		Proxies:   map[string]map[string]any{"vless": {}},
		DataLimit: GBToBytes(quotaGB),
		Expire:    expire.Unix(),
		Status:    models.EntitlementActive,
	}

	ent, err := withAuthRetry(ctx, c, func(ctx context.Context, token string) (*models.Entitlement, error) {
		resp, err := c.do(ctx, token, http.MethodPost, "/api/user", payload)
		if err != nil {
			return nil, err
		}
		defer drain(resp)

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			return c.decodeEntitlement(resp)
		case http.StatusConflict:
			c.log.Info("panel user exists, updating", slog.String("username", username))
			return c.replace(ctx, token, username, payload)
		case http.StatusUnauthorized:
			return nil, errUnauthorized
		default:
			return nil, &StatusError{Op: op, Code: resp.StatusCode}
		}
	})
	c.observe("upsert", err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ent, nil
}

func (c *Client) replace(ctx context.Context, token, username string, payload userPayload) (*models.Entitlement, error) {
	const op = "panel.replace"

	resp, err := c.do(ctx, token, http.MethodPut, userPath(username), payload)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return c.decodeEntitlement(resp)
	case http.StatusUnauthorized:
		return nil, errUnauthorized
	default:
		return nil, &StatusError{Op: op, Code: resp.StatusCode}
	}
}

// Modify частично изменяет пользователя панели: передаются только
// заданные в patch поля.
func (c *Client) Modify(ctx context.Context, username string, patch models.EntitlementPatch) error {
	const op = "panel.Modify"

	_, err := withAuthRetry(ctx, c, func(ctx context.Context, token string) (struct{}, error) {
		resp, err := c.do(ctx, token, http.MethodPut, userPath(username), patch)
		if err != nil {
			return struct{}{}, err
		}
		defer drain(resp)

		switch resp.StatusCode {
		case http.StatusOK:
			return struct{}{}, nil
		case http.StatusNotFound:
			return struct{}{}, ErrNotFound
		case http.StatusUnauthorized:
			return struct{}{}, errUnauthorized
		default:
			return struct{}{}, &StatusError{Op: op, Code: resp.StatusCode}
		}
	})
	c.observe("modify", err)
	if err != nil {
		c.log.Warn("panel modify failed", slog.String("username", username), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет пользователя из панели.
func (c *Client) Delete(ctx context.Context, username string) error {
	const op = "panel.Delete"

	_, err := withAuthRetry(ctx, c, func(ctx context.Context, token string) (struct{}, error) {
		resp, err := c.do(ctx, token, http.MethodDelete, userPath(username), nil)
		if err != nil {
			return struct{}{}, err
		}
		defer drain(resp)

		switch resp.StatusCode {
		case http.StatusOK, http.StatusNoContent:
			return struct{}{}, nil
		case http.StatusNotFound:
			return struct{}{}, ErrNotFound
		case http.StatusUnauthorized:
			return struct{}{}, errUnauthorized
		default:
			return struct{}{}, &StatusError{Op: op, Code: resp.StatusCode}
		}
	})
	c.observe("delete", err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
