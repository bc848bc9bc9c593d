// handler.go — основной обработчик API закупок.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
// Маршруты и проверка экранов задаются в internal/server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/acme-procurement/internal/api/errors"
	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/service"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// CollaboratorService — операции над сотрудниками.
type CollaboratorService interface {
	Register(ctx context.Context, r service.Registration) (*model.Collaborator, error)
	Get(ctx context.Context, id string) (*model.Collaborator, error)
	List(ctx context.Context, limit, offset int) ([]*model.Collaborator, int, error)
	UpdateProfile(ctx context.Context, id string, p model.CollaboratorProfile) (*model.Collaborator, error)
	SetBlocked(ctx context.Context, actorID, id string, blocked bool) (*model.Collaborator, error)
	SetRole(ctx context.Context, actorID, id, role string) (*model.Collaborator, error)
	RequestPasswordReset(ctx context.Context, email string) error
}

// CatalogService — поставщики, контакты, товары.
type CatalogService interface {
	CreateSupplier(ctx context.Context, sup *model.Supplier) error
	GetSupplier(ctx context.Context, id string) (*model.Supplier, error)
	ListSuppliers(ctx context.Context, limit, offset int) ([]*model.Supplier, error)
	UpdateSupplier(ctx context.Context, sup *model.Supplier) error
	DeleteSupplier(ctx context.Context, id string) error
	CreateContact(ctx context.Context, c *model.Contact) error
	ListContacts(ctx context.Context, limit, offset int) ([]*model.Contact, error)
	DeleteContact(ctx context.Context, id string) error
	CreateProduct(ctx context.Context, p *model.Product) error
	ListProducts(ctx context.Context, limit, offset int) ([]*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// RequisitionService — заявки и котировки.
type RequisitionService interface {
	Submit(ctx context.Context, collaboratorID string, in service.RequisitionInput) (*model.Requisition, error)
	UpdateOwn(ctx context.Context, collaboratorID, id string, in service.RequisitionInput) (*model.Requisition, error)
	ListOwn(ctx context.Context, collaboratorID string) ([]*model.Requisition, error)
	DeleteOwn(ctx context.Context, collaboratorID, id string) error
	List(ctx context.Context, status string, limit, offset int) ([]*model.Requisition, error)
	SetStatus(ctx context.Context, id, status string) (*model.Requisition, error)
	Delete(ctx context.Context, id string) error
	ListQuotations(ctx context.Context, limit, offset int) ([]*model.Quotation, error)
	ListQuotationsFor(ctx context.Context, requisitionID string) ([]*model.Quotation, error)
	AddQuotation(ctx context.Context, requisitionID string, in service.QuotationInput) (*model.Quotation, error)
}

// HomeService — данные главного экрана.
type HomeService interface {
	AdminSummary(ctx context.Context) (*model.HomeSummary, error)
	CollaboratorRequisitions(ctx context.Context, collaboratorID string) ([]*model.Requisition, error)
}

// APIHandler — основной обработчик API закупок.
type APIHandler struct {
	health        *HealthHandler
	collaborators CollaboratorService
	catalog       CatalogService
	requisitions  RequisitionService
	home          HomeService
	roles         session.RoleStore
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	collaborators CollaboratorService,
	catalog CatalogService,
	requisitions RequisitionService,
	home HomeService,
	roles session.RoleStore,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		collaborators: collaborators,
		catalog:       catalog,
		requisitions:  requisitions,
		home:          home,
		roles:         roles,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Невалидное тело запроса: "+err.Error())
		return false
	}
	return true
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// queryPagination читает limit и offset из query string.
// Нечисловые значения игнорируются.
func queryPagination(r *http.Request) (int, int) {
	return paginationDefaults(queryInt(r, "limit"), queryInt(r, "offset"))
}

func queryInt(r *http.Request, name string) *int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

// pathUUID извлекает UUID из параметра пути. При ошибке пишет 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор: "+raw)
		return "", false
	}
	return id.String(), true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidRole):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Ресурс уже существует")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Error("Keycloak недоступен",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.IDPUnavailable(w, "Keycloak недоступен")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
