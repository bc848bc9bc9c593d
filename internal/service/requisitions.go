// requisitions.go — заявки сотрудников, рассмотрение администратором и котировки.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/repository"
)

// RequisitionInput — поля заявки, заполняемые сотрудником.
type RequisitionInput struct {
	ProductName string
	Description string
	Brand       string
	Quantity    int
}

func (in RequisitionInput) validate() error {
	if strings.TrimSpace(in.ProductName) == "" {
		return fmt.Errorf("%w: не заполнено поле product_name", ErrValidation)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: количество должно быть больше нуля", ErrValidation)
	}
	return nil
}

// QuotationInput — данные котировки. Если задан ContactID, пустые поля
// компании, сотрудника и контакта заполняются из карточки контакта.
type QuotationInput struct {
	CompanyName  string
	EmployeeName string
	Price        float64
	Contact      string
	ContactID    string
}

// RequisitionService — сервис заявок и котировок.
type RequisitionService struct {
	requisitions  repository.RequisitionRepository
	quotations    repository.QuotationRepository
	collaborators repository.CollaboratorRepository
	contacts      repository.ContactRepository
	logger        *slog.Logger
}

// NewRequisitionService создаёт сервис заявок.
func NewRequisitionService(
	requisitions repository.RequisitionRepository,
	quotations repository.QuotationRepository,
	collaborators repository.CollaboratorRepository,
	contacts repository.ContactRepository,
	logger *slog.Logger,
) *RequisitionService {
	return &RequisitionService{
		requisitions:  requisitions,
		quotations:    quotations,
		collaborators: collaborators,
		contacts:      contacts,
		logger:        logger.With(slog.String("component", "requisition_service")),
	}
}

// --- Заявки сотрудника ---

// Submit создаёт заявку от имени сотрудника в состоянии Pendente.
func (s *RequisitionService) Submit(ctx context.Context, collaboratorID string, in RequisitionInput) (*model.Requisition, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	author, err := s.collaborators.GetByID(ctx, collaboratorID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	r := &model.Requisition{
		ID:               uuid.New().String(),
		CollaboratorID:   author.ID,
		CollaboratorName: author.Name,
		ProductName:      strings.TrimSpace(in.ProductName),
		Description:      in.Description,
		Brand:            in.Brand,
		Quantity:         in.Quantity,
		State:            model.RequisitionStatePending,
		Status:           model.RequisitionPending,
	}
	if err := s.requisitions.Create(ctx, r); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Заявка создана",
		slog.String("requisition_id", r.ID),
		slog.String("collaborator_id", collaboratorID),
	)
	return r, nil
}

// UpdateOwn изменяет собственную заявку; состояние возвращается в Pendente.
// Чужая или отсутствующая заявка — ErrNotFound.
func (s *RequisitionService) UpdateOwn(ctx context.Context, collaboratorID, id string, in RequisitionInput) (*model.Requisition, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	r := &model.Requisition{
		ID:             id,
		CollaboratorID: collaboratorID,
		ProductName:    strings.TrimSpace(in.ProductName),
		Description:    in.Description,
		Brand:          in.Brand,
		Quantity:       in.Quantity,
	}
	if err := s.requisitions.UpdateOwned(ctx, r); err != nil {
		return nil, mapRepoError(err)
	}
	return r, nil
}

// ListOwn возвращает заявки сотрудника по времени подачи.
func (s *RequisitionService) ListOwn(ctx context.Context, collaboratorID string) ([]*model.Requisition, error) {
	return s.requisitions.ListByCollaborator(ctx, collaboratorID)
}

// DeleteOwn удаляет собственную заявку.
func (s *RequisitionService) DeleteOwn(ctx context.Context, collaboratorID, id string) error {
	return mapRepoError(s.requisitions.DeleteOwned(ctx, id, collaboratorID))
}

// --- Рассмотрение администратором ---

// List возвращает заявки, опционально отфильтрованные по статусу.
func (s *RequisitionService) List(ctx context.Context, status string, limit, offset int) ([]*model.Requisition, error) {
	var filter *model.RequisitionStatus
	if status != "" {
		st := model.RequisitionStatus(status)
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: неизвестный статус '%s'", ErrValidation, status)
		}
		filter = &st
	}
	return s.requisitions.List(ctx, filter, limit, offset)
}

// Get возвращает заявку по ID.
func (s *RequisitionService) Get(ctx context.Context, id string) (*model.Requisition, error) {
	r, err := s.requisitions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return r, nil
}

// SetStatus записывает решение по заявке.
func (s *RequisitionService) SetStatus(ctx context.Context, id, status string) (*model.Requisition, error) {
	st := model.RequisitionStatus(status)
	if !st.IsValid() {
		return nil, fmt.Errorf("%w: неизвестный статус '%s'", ErrValidation, status)
	}

	r, err := s.requisitions.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Изменён статус заявки",
		slog.String("requisition_id", id),
		slog.String("status", status),
	)
	return r, nil
}

// Delete удаляет заявку вместе с котировками.
func (s *RequisitionService) Delete(ctx context.Context, id string) error {
	if err := s.requisitions.Delete(ctx, id); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("Заявка удалена", slog.String("requisition_id", id))
	return nil
}

// --- Котировки ---

// ListQuotations возвращает страницу котировок.
func (s *RequisitionService) ListQuotations(ctx context.Context, limit, offset int) ([]*model.Quotation, error) {
	return s.quotations.List(ctx, limit, offset)
}

// ListQuotationsFor возвращает котировки заявки, дешёвые первыми.
func (s *RequisitionService) ListQuotationsFor(ctx context.Context, requisitionID string) ([]*model.Quotation, error) {
	if _, err := s.requisitions.GetByID(ctx, requisitionID); err != nil {
		return nil, mapRepoError(err)
	}
	return s.quotations.ListByRequisition(ctx, requisitionID)
}

// AddQuotation создаёт котировку по заявке. Товар берётся из заявки.
func (s *RequisitionService) AddQuotation(ctx context.Context, requisitionID string, in QuotationInput) (*model.Quotation, error) {
	if in.Price <= 0 {
		return nil, fmt.Errorf("%w: цена должна быть больше нуля", ErrValidation)
	}

	req, err := s.requisitions.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if in.ContactID != "" {
		contact, err := s.contacts.GetByID(ctx, in.ContactID)
		if err != nil {
			return nil, fmt.Errorf("контакт '%s': %w", in.ContactID, mapRepoError(err))
		}
		in.CompanyName = firstNonEmpty(in.CompanyName, contact.SupplierName)
		in.EmployeeName = firstNonEmpty(in.EmployeeName, contact.Name)
		in.Contact = firstNonEmpty(in.Contact, contact.Email, contact.Phone)
	}

	if strings.TrimSpace(in.CompanyName) == "" {
		return nil, fmt.Errorf("%w: не заполнено поле company_name", ErrValidation)
	}

	q := &model.Quotation{
		ID:            uuid.New().String(),
		RequisitionID: req.ID,
		CompanyName:   in.CompanyName,
		EmployeeName:  in.EmployeeName,
		Price:         in.Price,
		Product:       req.ProductName,
		Contact:       in.Contact,
	}
	if err := s.quotations.Create(ctx, q); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Котировка добавлена",
		slog.String("quotation_id", q.ID),
		slog.String("requisition_id", req.ID),
	)
	return q, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
