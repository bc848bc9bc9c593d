// home.go — сводка главного экрана.
package service

import (
	"context"
	"fmt"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/repository"
)

// HomeService — данные главного экрана.
type HomeService struct {
	products     repository.ProductRepository
	quotations   repository.QuotationRepository
	requisitions repository.RequisitionRepository
}

// NewHomeService создаёт сервис главного экрана.
func NewHomeService(
	products repository.ProductRepository,
	quotations repository.QuotationRepository,
	requisitions repository.RequisitionRepository,
) *HomeService {
	return &HomeService{products: products, quotations: quotations, requisitions: requisitions}
}

// AdminSummary возвращает счётчики товаров, котировок и ожидающих заявок.
func (s *HomeService) AdminSummary(ctx context.Context) (*model.HomeSummary, error) {
	products, err := s.products.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт товаров: %w", err)
	}
	quotations, err := s.quotations.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт котировок: %w", err)
	}
	pending, err := s.requisitions.CountByStatus(ctx, model.RequisitionPending)
	if err != nil {
		return nil, fmt.Errorf("подсчёт заявок: %w", err)
	}
	return &model.HomeSummary{
		Products:            products,
		Quotations:          quotations,
		PendingRequisitions: pending,
	}, nil
}

// CollaboratorRequisitions возвращает заявки сотрудника для главного экрана.
func (s *HomeService) CollaboratorRequisitions(ctx context.Context, collaboratorID string) ([]*model.Requisition, error) {
	return s.requisitions.ListByCollaborator(ctx, collaboratorID)
}
