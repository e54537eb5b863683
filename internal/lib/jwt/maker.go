// Package jwt выпускает и проверяет токены сессии админ-консоли.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin — единственная роль консоли.
const RoleAdmin = "admin"

var (
	// ErrEmptySecret — ключ подписи не задан.
	ErrEmptySecret = errors.New("jwt secret is empty")
	// ErrInvalidToken — токен не прошёл проверку.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims — данные сессии администратора.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Maker подписывает токены ключом HS256 и задаёт им время жизни.
type Maker struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewMaker(secretKey string, ttl time.Duration) *Maker {
	return &Maker{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// GenerateToken выпускает токен администратора username.
func (m *Maker) GenerateToken(username string) (string, time.Time, error) {
	const op = "jwt.GenerateToken"
	if len(m.secretKey) == 0 {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	now := m.now()
	expiresAt := now.Add(m.tokenTTL)
	claims := Claims{
		Username: username,
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return signed, expiresAt, nil
}

// ParseToken проверяет подпись, срок и роль токена.
func (m *Maker) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	if len(m.secretKey) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
