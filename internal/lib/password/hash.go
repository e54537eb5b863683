// Package password хеширует и проверяет пароль администратора консоли.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch — пароль не соответствует хешу.
var ErrMismatch = errors.New("password mismatch")

// Hash возвращает bcrypt-хеш пароля для поля admin.password_hash конфига.
func Hash(password string) (string, error) {
	const op = "password.Hash"
	if password == "" {
		return "", fmt.Errorf("%s: empty password", op)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Verify сравнивает пароль с хешем. Несовпадение возвращает ErrMismatch,
// повреждённый или пустой хеш — другую ошибку.
func Verify(hash, password string) error {
	const op = "password.Verify"
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
