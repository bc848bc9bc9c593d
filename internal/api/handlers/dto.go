// dto.go — JSON-представления запросов и ответов API закупок.
package handlers

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/routegate"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// listResponse — страница элементов.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// --- Сотрудники ---

type registerRequest struct {
	Email          openapi_types.Email `json:"email"`
	Password       string              `json:"password"` //nolint:gosec // G117: поле запроса
	Name           string              `json:"name"`
	EmployeeNumber string              `json:"employee_number"`
	Gender         string              `json:"gender"`
	BirthDate      *openapi_types.Date `json:"birth_date,omitempty"`
	Position       string              `json:"position"`
}

type passwordResetRequest struct {
	Email openapi_types.Email `json:"email"`
}

type profileUpdateRequest struct {
	Name           *string             `json:"name,omitempty"`
	EmployeeNumber *string             `json:"employee_number,omitempty"`
	Gender         *string             `json:"gender,omitempty"`
	BirthDate      *openapi_types.Date `json:"birth_date,omitempty"`
	Position       *string             `json:"position,omitempty"`
	ProfilePicture *string             `json:"profile_picture,omitempty"`
}

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type collaboratorResponse struct {
	ID             string              `json:"id"`
	Email          string              `json:"email"`
	Name           string              `json:"name"`
	EmployeeNumber string              `json:"employee_number"`
	Gender         string              `json:"gender"`
	BirthDate      *openapi_types.Date `json:"birth_date,omitempty"`
	Position       string              `json:"position"`
	Role           string              `json:"role"`
	IsBlocked      bool                `json:"is_blocked"`
	ProfilePicture string              `json:"profile_picture"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type collaboratorListResponse struct {
	Items   []collaboratorResponse `json:"items"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	HasMore bool                   `json:"has_more"`
}

func toDate(t *time.Time) *openapi_types.Date {
	if t == nil {
		return nil
	}
	return &openapi_types.Date{Time: *t}
}

func fromDate(d *openapi_types.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func mapCollaborator(c *model.Collaborator) collaboratorResponse {
	return collaboratorResponse{
		ID:             c.ID,
		Email:          c.Email,
		Name:           c.Name,
		EmployeeNumber: c.EmployeeNumber,
		Gender:         c.Gender,
		BirthDate:      toDate(c.BirthDate),
		Position:       c.Position,
		Role:           c.Role.String(),
		IsBlocked:      c.IsBlocked,
		ProfilePicture: c.ProfilePicture,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// --- Сессия ---

type sessionResponse struct {
	Identity string             `json:"identity,omitempty"`
	Status   session.Status     `json:"status"`
	Role     string             `json:"role,omitempty"`
	Routes   routegate.RouteSet `json:"routes"`
}

// roleRecordResponse — запись роли в формате, который читает клиент оболочки.
type roleRecordResponse struct {
	Role      string `json:"role"`
	IsBlocked bool   `json:"is_blocked"`
}

// --- Каталог ---

type supplierRequest struct {
	CompanyName string `json:"company_name"`
	CNPJ        string `json:"cnpj"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

type supplierResponse struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"company_name"`
	CNPJ        string    `json:"cnpj"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (req supplierRequest) toModel(id string) *model.Supplier {
	return &model.Supplier{
		ID:          id,
		CompanyName: req.CompanyName,
		CNPJ:        req.CNPJ,
		Address:     req.Address,
		Phone:       req.Phone,
		Email:       req.Email,
	}
}

func mapSupplier(s *model.Supplier) supplierResponse {
	return supplierResponse{
		ID:          s.ID,
		CompanyName: s.CompanyName,
		CNPJ:        s.CNPJ,
		Address:     s.Address,
		Phone:       s.Phone,
		Email:       s.Email,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type contactRequest struct {
	Name         string `json:"name"`
	SupplierName string `json:"supplier_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
}

type contactResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SupplierName string    `json:"supplier_name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

func mapContact(c *model.Contact) contactResponse {
	return contactResponse{
		ID:           c.ID,
		Name:         c.Name,
		SupplierName: c.SupplierName,
		Phone:        c.Phone,
		Email:        c.Email,
		CreatedAt:    c.CreatedAt,
	}
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func mapProduct(p *model.Product) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, Description: p.Description, CreatedAt: p.CreatedAt}
}

// --- Заявки и котировки ---

type requisitionRequest struct {
	ProductName string `json:"product_name"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Quantity    int    `json:"quantity"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type requisitionResponse struct {
	ID               string    `json:"id"`
	CollaboratorID   string    `json:"collaborator_id"`
	CollaboratorName string    `json:"collaborator_name"`
	ProductName      string    `json:"product_name"`
	Description      string    `json:"description"`
	Brand            string    `json:"brand"`
	Quantity         int       `json:"quantity"`
	State            string    `json:"state"`
	Status           string    `json:"status"`
	StatusLabel      string    `json:"status_label"`
	RequestedAt      time.Time `json:"requested_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func mapRequisition(r *model.Requisition) requisitionResponse {
	return requisitionResponse{
		ID:               r.ID,
		CollaboratorID:   r.CollaboratorID,
		CollaboratorName: r.CollaboratorName,
		ProductName:      r.ProductName,
		Description:      r.Description,
		Brand:            r.Brand,
		Quantity:         r.Quantity,
		State:            r.State,
		Status:           string(r.Status),
		StatusLabel:      r.Status.Label(),
		RequestedAt:      r.RequestedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func mapRequisitions(items []*model.Requisition) []requisitionResponse {
	out := make([]requisitionResponse, len(items))
	for i, r := range items {
		out[i] = mapRequisition(r)
	}
	return out
}

type quotationRequest struct {
	CompanyName  string  `json:"company_name"`
	EmployeeName string  `json:"employee_name"`
	Price        float64 `json:"price"`
	Contact      string  `json:"contact"`
	ContactID    string  `json:"contact_id"`
}

type quotationResponse struct {
	ID            string    `json:"id"`
	RequisitionID string    `json:"requisition_id"`
	CompanyName   string    `json:"company_name"`
	EmployeeName  string    `json:"employee_name"`
	Price         float64   `json:"price"`
	Product       string    `json:"product"`
	Contact       string    `json:"contact"`
	CreatedAt     time.Time `json:"created_at"`
}

func mapQuotation(q *model.Quotation) quotationResponse {
	return quotationResponse{
		ID:            q.ID,
		RequisitionID: q.RequisitionID,
		CompanyName:   q.CompanyName,
		EmployeeName:  q.EmployeeName,
		Price:         q.Price,
		Product:       q.Product,
		Contact:       q.Contact,
		CreatedAt:     q.CreatedAt,
	}
}

func mapQuotations(items []*model.Quotation) []quotationResponse {
	out := make([]quotationResponse, len(items))
	for i, q := range items {
		out[i] = mapQuotation(q)
	}
	return out
}

// --- Главный экран ---

type homeSummary struct {
	Products            int `json:"products"`
	Quotations          int `json:"quotations"`
	PendingRequisitions int `json:"pending_requisitions"`
}

type homeResponse struct {
	Role         string                `json:"role"`
	Summary      *homeSummary          `json:"summary,omitempty"`
	Requisitions []requisitionResponse `json:"requisitions,omitempty"`
}
