// Package auth проверяет учётные данные администратора и выпускает токены консоли.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/password"
)

var (
	// ErrInvalidCredentials — неверный логин или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginDisabled — хеш пароля администратора не задан в конфиге.
	ErrLoginDisabled = errors.New("admin login disabled")
)

// TokenMaker выпускает и проверяет токены.
type TokenMaker interface {
	GenerateToken(username string) (string, time.Time, error)
	ParseToken(tokenStr string) (*jwt.Claims, error)
}

// Service отвечает за вход в консоль и проверку токенов.
type Service struct {
	admin    config.Admin
	jwtMaker TokenMaker
}

func New(admin config.Admin, jwtMaker TokenMaker) *Service {
	return &Service{
		admin:    admin,
		jwtMaker: jwtMaker,
	}
}

// Login проверяет пару логин/пароль и возвращает токен с моментом его истечения.
func (s *Service) Login(_ context.Context, username, rawPassword string) (string, time.Time, error) {
	const op = "auth.Login"

	if s.admin.PasswordHash == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrLoginDisabled)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	if err := password.Verify(s.admin.PasswordHash, rawPassword); err != nil || !userOK {
		if err != nil && !errors.Is(err, password.ErrMismatch) {
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, expiresAt, err := s.jwtMaker.GenerateToken(username)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return token, expiresAt, nil
}

// ValidateToken проверяет токен и возвращает имя администратора.
func (s *Service) ValidateToken(_ context.Context, token string) (string, error) {
	const op = "auth.ValidateToken"

	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return claims.Username, nil
}
