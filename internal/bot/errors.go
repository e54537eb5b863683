package bot

import (
	"errors"

	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
	"github.com/magabrotheeeer/vpn-shop/internal/services/storefront"
)

// describeError переводит ошибку движка в текст для пользователя.
func describeError(err error) string {
	switch {
	case errors.Is(err, entitlement.ErrBanned):
		return "⛔ Ваш аккаунт заблокирован."
	case errors.Is(err, entitlement.ErrTrialUnavailable):
		return "Пробный период доступен только новым пользователям."
	case errors.Is(err, entitlement.ErrPlanNotFound), errors.Is(err, storefront.ErrNotFound):
		return "Тариф не найден или больше недоступен."
	case errors.Is(err, entitlement.ErrValidation):
		return "Некорректные данные платежа. Выберите тариф заново."
	case errors.Is(err, entitlement.ErrRemoteUnavailable):
		return "Сервер VPN временно недоступен, попробуйте позже."
	case errors.Is(err, entitlement.ErrAlreadyProcessed):
		return "Транзакция уже обработана."
	case errors.Is(err, entitlement.ErrNotFound):
		return "Не найдено. Нажмите /start и попробуйте снова."
	default:
		return "Произошла ошибка, попробуйте позже."
	}
}
