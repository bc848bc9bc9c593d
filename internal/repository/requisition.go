package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
)

// RequisitionRepository — интерфейс для таблицы requisitions.
type RequisitionRepository interface {
	// Create создаёт заявку. ErrReference — автор не зарегистрирован.
	Create(ctx context.Context, r *model.Requisition) error
	// GetByID возвращает заявку по ID.
	GetByID(ctx context.Context, id string) (*model.Requisition, error)
	// List возвращает все заявки (опционально по статусу), новые первыми.
	List(ctx context.Context, status *model.RequisitionStatus, limit, offset int) ([]*model.Requisition, error)
	// ListByCollaborator возвращает заявки автора по времени подачи.
	ListByCollaborator(ctx context.Context, collaboratorID string) ([]*model.Requisition, error)
	// UpdateOwned изменяет заявку автора и возвращает её в состояние Pendente.
	UpdateOwned(ctx context.Context, r *model.Requisition) error
	// UpdateStatus записывает решение администратора.
	UpdateStatus(ctx context.Context, id string, status model.RequisitionStatus) (*model.Requisition, error)
	// Delete удаляет заявку (котировки удаляются каскадно).
	Delete(ctx context.Context, id string) error
	// DeleteOwned удаляет заявку, только если она принадлежит автору.
	DeleteOwned(ctx context.Context, id, collaboratorID string) error
	// CountByStatus возвращает количество заявок в статусе.
	CountByStatus(ctx context.Context, status model.RequisitionStatus) (int, error)
}

type requisitionRepo struct {
	db DBTX
}

// NewRequisitionRepository создаёт репозиторий заявок.
func NewRequisitionRepository(db DBTX) RequisitionRepository {
	return &requisitionRepo{db: db}
}

const requisitionColumns = `id, collaborator_id, collaborator_name, product_name, description, brand,
	quantity, state, status, requested_at, updated_at`

func scanRequisition(row interface{ Scan(dest ...any) error }) (*model.Requisition, error) {
	r := &model.Requisition{}
	var status string
	err := row.Scan(
		&r.ID, &r.CollaboratorID, &r.CollaboratorName, &r.ProductName, &r.Description, &r.Brand,
		&r.Quantity, &r.State, &status, &r.RequestedAt, &r.UpdatedAt,
	)
	r.Status = model.RequisitionStatus(status)
	return r, err
}

func (rr *requisitionRepo) Create(ctx context.Context, r *model.Requisition) error {
	query := `
		INSERT INTO requisitions (id, collaborator_id, collaborator_name, product_name, description,
			brand, quantity, state, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING requested_at, updated_at`

	err := rr.db.QueryRow(ctx, query,
		r.ID, r.CollaboratorID, r.CollaboratorName, r.ProductName, r.Description,
		r.Brand, r.Quantity, r.State, string(r.Status),
	).Scan(&r.RequestedAt, &r.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReference
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (rr *requisitionRepo) GetByID(ctx context.Context, id string) (*model.Requisition, error) {
	query := fmt.Sprintf(`SELECT %s FROM requisitions WHERE id = $1`, requisitionColumns)

	r, err := scanRequisition(rr.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return r, nil
}

func (rr *requisitionRepo) List(ctx context.Context, status *model.RequisitionStatus, limit, offset int) ([]*model.Requisition, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	query := fmt.Sprintf(`
		SELECT %s FROM requisitions
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY requested_at DESC, id
		LIMIT $2 OFFSET $3`, requisitionColumns)

	return rr.query(ctx, query, statusArg, limit, offset)
}

func (rr *requisitionRepo) ListByCollaborator(ctx context.Context, collaboratorID string) ([]*model.Requisition, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM requisitions
		WHERE collaborator_id = $1
		ORDER BY requested_at, id`, requisitionColumns)

	return rr.query(ctx, query, collaboratorID)
}

func (rr *requisitionRepo) query(ctx context.Context, query string, args ...any) ([]*model.Requisition, error) {
	rows, err := rr.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.Requisition
	for rows.Next() {
		r, err := scanRequisition(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (rr *requisitionRepo) UpdateOwned(ctx context.Context, r *model.Requisition) error {
	query := fmt.Sprintf(`
		UPDATE requisitions SET
			product_name = $3, description = $4, brand = $5, quantity = $6,
			state = $7, updated_at = NOW()
		WHERE id = $1 AND collaborator_id = $2
		RETURNING %s`, requisitionColumns)

	updated, err := scanRequisition(rr.db.QueryRow(ctx, query,
		r.ID, r.CollaboratorID, r.ProductName, r.Description, r.Brand, r.Quantity,
		model.RequisitionStatePending,
	))
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления заявки: %w", err)
	}
	*r = *updated
	return nil
}

func (rr *requisitionRepo) UpdateStatus(ctx context.Context, id string, status model.RequisitionStatus) (*model.Requisition, error) {
	query := fmt.Sprintf(`
		UPDATE requisitions SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, requisitionColumns)

	r, err := scanRequisition(rr.db.QueryRow(ctx, query, id, string(status)))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка изменения статуса заявки: %w", err)
	}
	return r, nil
}

func (rr *requisitionRepo) Delete(ctx context.Context, id string) error {
	tag, err := rr.db.Exec(ctx, `DELETE FROM requisitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (rr *requisitionRepo) DeleteOwned(ctx context.Context, id, collaboratorID string) error {
	tag, err := rr.db.Exec(ctx,
		`DELETE FROM requisitions WHERE id = $1 AND collaborator_id = $2`, id, collaboratorID)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (rr *requisitionRepo) CountByStatus(ctx context.Context, status model.RequisitionStatus) (int, error) {
	var count int
	err := rr.db.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return count, nil
}

// --- Котировки ---

// QuotationRepository — интерфейс для таблицы quotations.
type QuotationRepository interface {
	// Create создаёт котировку. ErrReference — заявка не существует.
	Create(ctx context.Context, q *model.Quotation) error
	// List возвращает все котировки, новые первыми.
	List(ctx context.Context, limit, offset int) ([]*model.Quotation, error)
	// ListByRequisition возвращает котировки по заявке, дешёвые первыми.
	ListByRequisition(ctx context.Context, requisitionID string) ([]*model.Quotation, error)
	// Count возвращает количество котировок.
	Count(ctx context.Context) (int, error)
}

type quotationRepo struct {
	db DBTX
}

// NewQuotationRepository создаёт репозиторий котировок.
func NewQuotationRepository(db DBTX) QuotationRepository {
	return &quotationRepo{db: db}
}

const quotationColumns = `id, requisition_id, company_name, employee_name, price, product, contact, created_at`

func (r *quotationRepo) Create(ctx context.Context, q *model.Quotation) error {
	query := `
		INSERT INTO quotations (id, requisition_id, company_name, employee_name, price, product, contact)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		q.ID, q.RequisitionID, q.CompanyName, q.EmployeeName, q.Price, q.Product, q.Contact,
	).Scan(&q.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReference
		}
		return fmt.Errorf("ошибка создания котировки: %w", err)
	}
	return nil
}

func (r *quotationRepo) List(ctx context.Context, limit, offset int) ([]*model.Quotation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM quotations
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, quotationColumns)
	return r.query(ctx, query, limit, offset)
}

func (r *quotationRepo) ListByRequisition(ctx context.Context, requisitionID string) ([]*model.Quotation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM quotations
		WHERE requisition_id = $1
		ORDER BY price, id`, quotationColumns)
	return r.query(ctx, query, requisitionID)
}

func (r *quotationRepo) query(ctx context.Context, query string, args ...any) ([]*model.Quotation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка котировок: %w", err)
	}
	defer rows.Close()

	var result []*model.Quotation
	for rows.Next() {
		q := &model.Quotation{}
		if err := rows.Scan(
			&q.ID, &q.RequisitionID, &q.CompanyName, &q.EmployeeName, &q.Price,
			&q.Product, &q.Contact, &q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования котировки: %w", err)
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (r *quotationRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта котировок: %w", err)
	}
	return count, nil
}
