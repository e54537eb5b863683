package transactions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
)

// Approver одобряет транзакцию.
type Approver interface {
	ApproveTransaction(ctx context.Context, txID int64) (*entitlement.ApproveResult, error)
}

type ApproveHandler struct {
	log      *slog.Logger
	approver Approver
}

func NewApprove(log *slog.Logger, approver Approver) *ApproveHandler {
	return &ApproveHandler{
		log:      log,
		approver: approver,
	}
}

func (h *ApproveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.transactions.approve"

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

	res, err := h.approver.ApproveTransaction(ctx, id)
	if err != nil {
		renderEngineError(w, r, log.With(slog.Int64("transaction_id", id)), err)
		return
	}

	log.Info("transaction approved", slog.Int64("transaction_id", id))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"transaction": res.Transaction,
		"plan":        res.Plan,
		"access_link": res.AccessLink,
		"expire_at":   res.ExpireAt,
		"recreated":   res.Recreated,
	}))
}
