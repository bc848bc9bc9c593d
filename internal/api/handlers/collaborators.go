// collaborators.go — регистрация, профиль и управление сотрудниками.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/acme-procurement/internal/api/middleware"
	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/service"
)

// RegisterCollaborator — POST /api/v1/collaborators.
// Создаёт пользователя Keycloak и запись роли colaborador.
// Доступ: публичный.
func (h *APIHandler) RegisterCollaborator(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.collaborators.Register(r.Context(), service.Registration{
		Email:          string(req.Email),
		Password:       req.Password,
		Name:           req.Name,
		EmployeeNumber: req.EmployeeNumber,
		Gender:         req.Gender,
		BirthDate:      fromDate(req.BirthDate),
		Position:       req.Position,
	})
	if err != nil {
		h.writeServiceError(w, err, "register_collaborator")
		return
	}

	writeJSON(w, http.StatusCreated, mapCollaborator(c))
}

// RequestPasswordReset — POST /api/v1/password-reset.
// Keycloak отправляет письмо со ссылкой на смену пароля.
// Ответ не раскрывает, зарегистрирован ли адрес.
// Доступ: публичный.
func (h *APIHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.collaborators.RequestPasswordReset(r.Context(), string(req.Email)); err != nil {
		h.writeServiceError(w, err, "password_reset")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GetMyProfile — GET /api/v1/collaborators/me.
// Доступ: экран ProfileSettings.
func (h *APIHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	c, err := h.collaborators.Get(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "get_profile")
		return
	}
	writeJSON(w, http.StatusOK, mapCollaborator(c))
}

// UpdateMyProfile — PUT /api/v1/collaborators/me.
// Отсутствующие поля не изменяются.
// Доступ: экран ProfileSettings.
func (h *APIHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.collaborators.UpdateProfile(r.Context(), middleware.SubjectFromContext(r.Context()), model.CollaboratorProfile{
		Name:           req.Name,
		EmployeeNumber: req.EmployeeNumber,
		Gender:         req.Gender,
		BirthDate:      fromDate(req.BirthDate),
		Position:       req.Position,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		h.writeServiceError(w, err, "update_profile")
		return
	}
	writeJSON(w, http.StatusOK, mapCollaborator(c))
}

// ListCollaborators — GET /api/v1/collaborators.
// Доступ: admin.
func (h *APIHandler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPagination(r)

	items, total, err := h.collaborators.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list_collaborators")
		return
	}

	resp := collaboratorListResponse{
		Items:   make([]collaboratorResponse, len(items)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
	for i, c := range items {
		resp.Items[i] = mapCollaborator(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// BlockCollaborator — PUT /api/v1/collaborators/{id}/block.
// Доступ: admin. Заблокировать самого себя нельзя.
func (h *APIHandler) BlockCollaborator(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.collaborators.SetBlocked(r.Context(),
		middleware.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), req.Blocked)
	if err != nil {
		h.writeServiceError(w, err, "block_collaborator")
		return
	}
	writeJSON(w, http.StatusOK, mapCollaborator(c))
}

// SetCollaboratorRole — PUT /api/v1/collaborators/{id}/role.
// Доступ: admin. Понизить самого себя нельзя.
func (h *APIHandler) SetCollaboratorRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.collaborators.SetRole(r.Context(),
		middleware.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.writeServiceError(w, err, "set_collaborator_role")
		return
	}
	writeJSON(w, http.StatusOK, mapCollaborator(c))
}
