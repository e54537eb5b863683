package transactions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
)

// Rejecter отклоняет транзакцию.
type Rejecter interface {
	RejectTransaction(ctx context.Context, txID int64) (*entitlement.RejectResult, error)
}

type RejectHandler struct {
	log      *slog.Logger
	rejecter Rejecter
}

func NewReject(log *slog.Logger, rejecter Rejecter) *RejectHandler {
	return &RejectHandler{
		log:      log,
		rejecter: rejecter,
	}
}

func (h *RejectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.transactions.reject"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("admin", middlewarectx.AdminFromContext(r.Context())),
	)

	id, ok := transactionID(w, r, log)
	if !ok {
		return
	}

	ctx, cancel := reviewContext(r)
	defer cancel()

	res, err := h.rejecter.RejectTransaction(ctx, id)
	if err != nil {
		renderEngineError(w, r, log.With(slog.Int64("transaction_id", id)), err)
		return
	}

	data := map[string]any{
		"transaction": res.Transaction,
		"policy":      res.Policy,
		"disabled":    res.Disabled,
		"banned":      res.Banned,
	}
	if res.ExpireAt != nil {
		data["expire_at"] = *res.ExpireAt
	}
	if res.RemoteErr != nil {
		log.Warn("transaction rejected, remote disable failed", slog.Int64("transaction_id", id), sl.Err(res.RemoteErr))
		data["remote_error"] = res.RemoteErr.Error()
	} else {
		log.Info("transaction rejected", slog.Int64("transaction_id", id))
	}
	render.JSON(w, r, response.OKWithData(data))
}
