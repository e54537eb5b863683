// Package transactions — обработчики консоли для просмотра и проверки платежей.
package transactions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
)

// reviewTimeout ограничивает одобрение и отклонение после отвязки от запроса.
const reviewTimeout = 30 * time.Second

// reviewContext отвязывает проверку от соединения клиента: начатое изменение
// в панели должно дойти до записи в реестр, даже если админ закрыл вкладку.
func reviewContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), reviewTimeout)
}

// transactionID читает {id} из пути. При ошибке ответ уже записан.
func transactionID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		log.Warn("invalid transaction id", slog.String("id", chi.URLParam(r, "id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid id"))
		return 0, false
	}
	return id, true
}

// renderEngineError переводит ошибку движка подписок в HTTP-ответ.
func renderEngineError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, entitlement.ErrNotFound):
		status, msg = http.StatusNotFound, "transaction not found"
	case errors.Is(err, entitlement.ErrAlreadyProcessed):
		status, msg = http.StatusConflict, "transaction already processed"
	case errors.Is(err, entitlement.ErrPlanNotFound):
		status, msg = http.StatusUnprocessableEntity, "plan not found"
	case errors.Is(err, entitlement.ErrRemoteUnavailable):
		status, msg = http.StatusBadGateway, "vpn panel unavailable"
	}
	if status >= http.StatusInternalServerError {
		log.Error("review failed", sl.Err(err))
	} else {
		log.Warn("review rejected", sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Error(msg))
}
