// catalog.go — справочники администратора: поставщики, контакты, товары.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/repository"
)

// CatalogService — сервис справочников.
type CatalogService struct {
	suppliers repository.SupplierRepository
	contacts  repository.ContactRepository
	products  repository.ProductRepository
	logger    *slog.Logger
}

// NewCatalogService создаёт сервис справочников.
func NewCatalogService(
	suppliers repository.SupplierRepository,
	contacts repository.ContactRepository,
	products repository.ProductRepository,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		suppliers: suppliers,
		contacts:  contacts,
		products:  products,
		logger:    logger.With(slog.String("component", "catalog_service")),
	}
}

// required проверяет, что все поля заполнены. Ключ — имя поля для сообщения.
func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: не заполнены поля %s", ErrValidation, strings.Join(missing, ", "))
}

// --- Поставщики ---

// CreateSupplier регистрирует поставщика. ErrConflict — CNPJ уже зарегистрирован.
func (s *CatalogService) CreateSupplier(ctx context.Context, sup *model.Supplier) error {
	if err := required(map[string]string{"company_name": sup.CompanyName, "cnpj": sup.CNPJ}); err != nil {
		return err
	}
	sup.ID = uuid.New().String()
	if err := s.suppliers.Create(ctx, sup); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("Поставщик создан",
		slog.String("supplier_id", sup.ID),
		slog.String("cnpj", sup.CNPJ),
	)
	return nil
}

// GetSupplier возвращает поставщика по ID.
func (s *CatalogService) GetSupplier(ctx context.Context, id string) (*model.Supplier, error) {
	sup, err := s.suppliers.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return sup, nil
}

// ListSuppliers возвращает страницу поставщиков.
func (s *CatalogService) ListSuppliers(ctx context.Context, limit, offset int) ([]*model.Supplier, error) {
	return s.suppliers.List(ctx, limit, offset)
}

// UpdateSupplier обновляет поставщика.
func (s *CatalogService) UpdateSupplier(ctx context.Context, sup *model.Supplier) error {
	if err := required(map[string]string{"company_name": sup.CompanyName, "cnpj": sup.CNPJ}); err != nil {
		return err
	}
	if err := s.suppliers.Update(ctx, sup); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// DeleteSupplier удаляет поставщика.
func (s *CatalogService) DeleteSupplier(ctx context.Context, id string) error {
	if err := s.suppliers.Delete(ctx, id); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("Поставщик удалён", slog.String("supplier_id", id))
	return nil
}

// --- Контакты ---

// CreateContact создаёт контакт.
func (s *CatalogService) CreateContact(ctx context.Context, c *model.Contact) error {
	if err := required(map[string]string{"name": c.Name, "supplier_name": c.SupplierName}); err != nil {
		return err
	}
	c.ID = uuid.New().String()
	if err := s.contacts.Create(ctx, c); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// GetContact возвращает контакт по ID.
func (s *CatalogService) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	c, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return c, nil
}

// ListContacts возвращает страницу контактов.
func (s *CatalogService) ListContacts(ctx context.Context, limit, offset int) ([]*model.Contact, error) {
	return s.contacts.List(ctx, limit, offset)
}

// DeleteContact удаляет контакт.
func (s *CatalogService) DeleteContact(ctx context.Context, id string) error {
	return mapRepoError(s.contacts.Delete(ctx, id))
}

// --- Товары ---

// CreateProduct добавляет товар в каталог.
func (s *CatalogService) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := required(map[string]string{"name": p.Name}); err != nil {
		return err
	}
	p.ID = uuid.New().String()
	if err := s.products.Create(ctx, p); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// ListProducts возвращает страницу товаров.
func (s *CatalogService) ListProducts(ctx context.Context, limit, offset int) ([]*model.Product, error) {
	return s.products.List(ctx, limit, offset)
}

// DeleteProduct удаляет товар.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return mapRepoError(s.products.Delete(ctx, id))
}
