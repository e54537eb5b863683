package transactions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

const defaultLimit = 50

// ListQuery — параметры выборки транзакций.
type ListQuery struct {
	Status string `validate:"omitempty,oneof=pending approved rejected"`
	Limit  int    `validate:"min=1,max=500"`
	Offset int    `validate:"min=0"`
}

// Lister возвращает транзакции по статусу. Пустой статус — все.
type Lister interface {
	ListTransactions(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]*models.Transaction, error)
}

type ListHandler struct {
	log      *slog.Logger
	lister   Lister
	validate *validator.Validate
}

func NewList(log *slog.Logger, lister Lister) *ListHandler {
	return &ListHandler{
		log:      log,
		lister:   lister,
		validate: validator.New(),
	}
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.transactions.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := ListQuery{Status: r.URL.Query().Get("status"), Limit: defaultLimit}
	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid limit"))
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if q.Offset, err = strconv.Atoi(v); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid offset"))
			return
		}
	}
	if err := h.validate.Struct(q); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	list, err := h.lister.ListTransactions(r.Context(), models.TransactionStatus(q.Status), q.Limit, q.Offset)
	if err != nil {
		log.Error("failed to list transactions", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	if list == nil {
		list = []*models.Transaction{}
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"count":        len(list),
		"transactions": list,
	}))
}
