// session.go — серверный Route Gate: сессия вызывающего и записи ролей.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/acme-procurement/internal/api/errors"
	"github.com/bigkaa/acme-procurement/internal/api/middleware"
	"github.com/bigkaa/acme-procurement/internal/routegate"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// GetSession — GET /api/v1/session.
// Возвращает статус сессии вызывающего, роль и набор доступных экранов.
// Доступ: любой аутентифицированный, включая заблокированных.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	if caller == nil {
		apierrors.Unauthorized(w, "Отсутствует вызывающий в контексте")
		return
	}

	s := caller.Session
	writeJSON(w, http.StatusOK, sessionResponse{
		Identity: s.Identity,
		Status:   s.Status,
		Role:     s.Role.String(),
		Routes:   routegate.Resolve(s),
	})
}

// GetRoleRecord — GET /api/v1/role-records/{identity}.
// Читать можно только свою запись; администратор читает любую.
// 404 — сотрудник с таким identity не зарегистрирован.
func (h *APIHandler) GetRoleRecord(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	if caller == nil {
		apierrors.Unauthorized(w, "Отсутствует вызывающий в контексте")
		return
	}

	identity := chi.URLParam(r, "identity")
	if identity != caller.Subject && !caller.IsAdmin() {
		apierrors.Forbidden(w, "Можно читать только свою запись роли")
		return
	}

	rec, err := h.roles.Get(r.Context(), identity)
	if err != nil {
		if errors.Is(err, session.ErrRoleNotFound) {
			apierrors.NotFound(w, "Запись роли не найдена")
			return
		}
		h.logger.Error("Ошибка чтения записи роли",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		apierrors.StoreUnavailable(w, "Хранилище ролей недоступно")
		return
	}

	writeJSON(w, http.StatusOK, roleRecordResponse{
		Role:      rec.Role.String(),
		IsBlocked: rec.IsBlocked,
	})
}
