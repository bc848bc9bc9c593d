// requisitions.go — заявки сотрудника, рассмотрение заявок и котировки.
package handlers

import (
	"net/http"

	"github.com/bigkaa/acme-procurement/internal/api/middleware"
	"github.com/bigkaa/acme-procurement/internal/service"
)

// --- Заявки сотрудника (экраны NewRequisition, MyRequisitions) ---

// SubmitRequisition — POST /api/v1/requisitions/mine.
func (h *APIHandler) SubmitRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.requisitions.Submit(r.Context(), middleware.SubjectFromContext(r.Context()), req.input())
	if err != nil {
		h.writeServiceError(w, err, "submit_requisition")
		return
	}
	writeJSON(w, http.StatusCreated, mapRequisition(created))
}

// UpdateMyRequisition — PUT /api/v1/requisitions/mine/{id}.
// Изменённая заявка снова получает состояние Pendente.
func (h *APIHandler) UpdateMyRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req requisitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.requisitions.UpdateOwn(r.Context(), middleware.SubjectFromContext(r.Context()), id, req.input())
	if err != nil {
		h.writeServiceError(w, err, "update_own_requisition")
		return
	}
	writeJSON(w, http.StatusOK, mapRequisition(updated))
}

// ListMyRequisitions — GET /api/v1/requisitions/mine.
func (h *APIHandler) ListMyRequisitions(w http.ResponseWriter, r *http.Request) {
	items, err := h.requisitions.ListOwn(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "list_own_requisitions")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[requisitionResponse]{Items: mapRequisitions(items), Limit: len(items)})
}

// DeleteMyRequisition — DELETE /api/v1/requisitions/mine/{id}.
func (h *APIHandler) DeleteMyRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.requisitions.DeleteOwn(r.Context(), middleware.SubjectFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, err, "delete_own_requisition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req requisitionRequest) input() service.RequisitionInput {
	return service.RequisitionInput{
		ProductName: req.ProductName,
		Description: req.Description,
		Brand:       req.Brand,
		Quantity:    req.Quantity,
	}
}

// --- Рассмотрение заявок (экран RequisitionReview) ---

// ListRequisitions — GET /api/v1/requisitions?status=pendente.
func (h *APIHandler) ListRequisitions(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPagination(r)
	items, err := h.requisitions.List(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list_requisitions")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[requisitionResponse]{Items: mapRequisitions(items), Limit: limit, Offset: offset})
}

// SetRequisitionStatus — PUT /api/v1/requisitions/{id}/status.
func (h *APIHandler) SetRequisitionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.requisitions.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeServiceError(w, err, "set_requisition_status")
		return
	}
	writeJSON(w, http.StatusOK, mapRequisition(updated))
}

// DeleteRequisition — DELETE /api/v1/requisitions/{id}.
func (h *APIHandler) DeleteRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.requisitions.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete_requisition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Котировки (экран Quotations) ---

// ListQuotations — GET /api/v1/quotations.
func (h *APIHandler) ListQuotations(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPagination(r)
	items, err := h.requisitions.ListQuotations(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list_quotations")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[quotationResponse]{Items: mapQuotations(items), Limit: limit, Offset: offset})
}

// ListRequisitionQuotations — GET /api/v1/requisitions/{id}/quotations.
func (h *APIHandler) ListRequisitionQuotations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	items, err := h.requisitions.ListQuotationsFor(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "list_requisition_quotations")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[quotationResponse]{Items: mapQuotations(items), Limit: len(items)})
}

// AddQuotation — POST /api/v1/requisitions/{id}/quotations.
// Товар берётся из заявки; contact_id дополняет пустые поля из карточки контакта.
func (h *APIHandler) AddQuotation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req quotationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.requisitions.AddQuotation(r.Context(), id, service.QuotationInput{
		CompanyName:  req.CompanyName,
		EmployeeName: req.EmployeeName,
		Price:        req.Price,
		Contact:      req.Contact,
		ContactID:    req.ContactID,
	})
	if err != nil {
		h.writeServiceError(w, err, "add_quotation")
		return
	}
	writeJSON(w, http.StatusCreated, mapQuotation(q))
}

// --- Главный экран ---

// GetHome — GET /api/v1/home.
// Администратор получает сводку, сотрудник — свои заявки.
func (h *APIHandler) GetHome(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	if caller == nil {
		h.writeServiceError(w, service.ErrForbidden, "home")
		return
	}

	resp := homeResponse{Role: caller.Session.Role.String()}
	if caller.IsAdmin() {
		sum, err := h.home.AdminSummary(r.Context())
		if err != nil {
			h.writeServiceError(w, err, "home_summary")
			return
		}
		resp.Summary = &homeSummary{
			Products:            sum.Products,
			Quotations:          sum.Quotations,
			PendingRequisitions: sum.PendingRequisitions,
		}
	} else {
		items, err := h.home.CollaboratorRequisitions(r.Context(), caller.Subject)
		if err != nil {
			h.writeServiceError(w, err, "home_requisitions")
			return
		}
		resp.Requisitions = mapRequisitions(items)
	}
	writeJSON(w, http.StatusOK, resp)
}
