// catalog.go — обработчики поставщиков, контактов и товаров.
// Доступ: администратор (экраны Suppliers, Contacts, Products).
package handlers

import (
	"net/http"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
)

// ListSuppliers — GET /api/v1/suppliers.
func (h *APIHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPagination(r)
	items, err := h.catalog.ListSuppliers(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list_suppliers")
		return
	}

	resp := listResponse[supplierResponse]{Items: make([]supplierResponse, len(items)), Limit: limit, Offset: offset}
	for i, s := range items {
		resp.Items[i] = mapSupplier(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSupplier — POST /api/v1/suppliers.
func (h *APIHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s := req.toModel("")
	if err := h.catalog.CreateSupplier(r.Context(), s); err != nil {
		h.writeServiceError(w, err, "create_supplier")
		return
	}
	writeJSON(w, http.StatusCreated, mapSupplier(s))
}

// GetSupplier — GET /api/v1/suppliers/{id}.
func (h *APIHandler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	s, err := h.catalog.GetSupplier(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get_supplier")
		return
	}
	writeJSON(w, http.StatusOK, mapSupplier(s))
}

// UpdateSupplier — PUT /api/v1/suppliers/{id}.
func (h *APIHandler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req supplierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s := req.toModel(id)
	if err := h.catalog.UpdateSupplier(r.Context(), s); err != nil {
		h.writeServiceError(w, err, "update_supplier")
		return
	}
	writeJSON(w, http.StatusOK, mapSupplier(s))
}

// DeleteSupplier — DELETE /api/v1/suppliers/{id}.
func (h *APIHandler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteSupplier(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete_supplier")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListContacts — GET /api/v1/contacts.
func (h *APIHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPagination(r)
	items, err := h.catalog.ListContacts(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list_contacts")
		return
	}

	resp := listResponse[contactResponse]{Items: make([]contactResponse, len(items)), Limit: limit, Offset: offset}
	for i, c := range items {
		resp.Items[i] = mapContact(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateContact — POST /api/v1/contacts.
func (h *APIHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c := &model.Contact{Name: req.Name, SupplierName: req.SupplierName, Phone: req.Phone, Email: req.Email}
	if err := h.catalog.CreateContact(r.Context(), c); err != nil {
		h.writeServiceError(w, err, "create_contact")
		return
	}
	writeJSON(w, http.StatusCreated, mapContact(c))
}

// DeleteContact — DELETE /api/v1/contacts/{id}.
func (h *APIHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteContact(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete_contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProducts — GET /api/v1/products.
func (h *APIHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPagination(r)
	items, err := h.catalog.ListProducts(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list_products")
		return
	}

	resp := listResponse[productResponse]{Items: make([]productResponse, len(items)), Limit: limit, Offset: offset}
	for i, p := range items {
		resp.Items[i] = mapProduct(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProduct — POST /api/v1/products.
func (h *APIHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := &model.Product{Name: req.Name, Description: req.Description}
	if err := h.catalog.CreateProduct(r.Context(), p); err != nil {
		h.writeServiceError(w, err, "create_product")
		return
	}
	writeJSON(w, http.StatusCreated, mapProduct(p))
}

// DeleteProduct — DELETE /api/v1/products/{id}.
func (h *APIHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete_product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
