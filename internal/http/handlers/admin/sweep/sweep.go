// Package sweep запускает внеплановую проверку истёкших подписок.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-shop/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-shop/internal/http/response"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
	"github.com/magabrotheeeer/vpn-shop/internal/services/scheduler"
)

// runTimeout ограничивает ручную проверку, запущенную из консоли.
const runTimeout = 5 * time.Minute

// Runner выполняет проверку, если она ещё не идёт.
type Runner interface {
	TryRun(ctx context.Context) (*entitlement.SweepReport, error)
}

type failure struct {
	UserID int64  `json:"user_id"`
	Error  string `json:"error"`
}

type Handler struct {
	log    *slog.Logger
	runner Runner
}

func New(log *slog.Logger, runner Runner) *Handler {
	return &Handler{
		log:    log,
		runner: runner,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.sweep"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("admin", middlewarectx.AdminFromContext(r.Context())),
	)

	// проверка не прерывается при обрыве соединения, иначе часть
	// пользователей останется отключённой в панели без записи в реестре
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), runTimeout)
	defer cancel()

	report, err := h.runner.TryRun(ctx)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		log.Warn("sweep already running")
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("sweep already running"))
		return
	}
	if err != nil && report == nil {
		log.Error("sweep failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("sweep failed"))
		return
	}

	failures := make([]failure, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, failure{UserID: f.UserID, Error: f.Err.Error()})
	}
	data := map[string]any{
		"run_id":   report.RunID,
		"checked":  report.Checked,
		"expired":  report.Expired,
		"skipped":  report.Skipped,
		"failures": failures,
	}
	if err != nil {
		log.Warn("sweep interrupted", sl.Err(err))
		data["interrupted"] = true
	}

	log.Info("manual sweep finished", slog.String("run_id", report.RunID), slog.Int("expired", report.Expired))
	render.JSON(w, r, response.OKWithData(data))
}
