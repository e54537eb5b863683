// Package users — блокировка и разблокировка пользователей бота из консоли.
package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/services/storefront"
)

type Service interface {
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
}

// Handler меняет признак блокировки пользователя {id} на banned.
type Handler struct {
	log     *slog.Logger
	service Service
	banned  bool
}

func NewBan(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, banned: true}
}

func NewUnban(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, banned: false}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.ban"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("admin", middlewarectx.AdminFromContext(r.Context())),
	)

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		log.Warn("invalid user id", slog.String("id", chi.URLParam(r, "id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid id"))
		return
	}

	if h.banned {
		err = h.service.Ban(r.Context(), userID)
	} else {
		err = h.service.Unban(r.Context(), userID)
	}
	switch {
	case err == nil:
	case errors.Is(err, storefront.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	default:
		log.Error("failed to change ban status", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"user_id": userID,
		"banned":  h.banned,
	}))
}
