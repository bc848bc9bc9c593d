package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
)

// --- Поставщики ---

// SupplierRepository — интерфейс CRUD для таблицы suppliers.
type SupplierRepository interface {
	// Create создаёт поставщика. ErrConflict — CNPJ уже зарегистрирован.
	Create(ctx context.Context, s *model.Supplier) error
	// GetByID возвращает поставщика по ID.
	GetByID(ctx context.Context, id string) (*model.Supplier, error)
	// List возвращает поставщиков, отсортированных по наименованию.
	List(ctx context.Context, limit, offset int) ([]*model.Supplier, error)
	// Update обновляет поставщика целиком.
	Update(ctx context.Context, s *model.Supplier) error
	// Delete удаляет поставщика.
	Delete(ctx context.Context, id string) error
}

type supplierRepo struct {
	db DBTX
}

// NewSupplierRepository создаёт репозиторий поставщиков.
func NewSupplierRepository(db DBTX) SupplierRepository {
	return &supplierRepo{db: db}
}

const supplierColumns = `id, company_name, cnpj, address, phone, email, created_at, updated_at`

func scanSupplier(row interface{ Scan(dest ...any) error }) (*model.Supplier, error) {
	s := &model.Supplier{}
	err := row.Scan(&s.ID, &s.CompanyName, &s.CNPJ, &s.Address, &s.Phone, &s.Email,
		&s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *supplierRepo) Create(ctx context.Context, s *model.Supplier) error {
	query := `
		INSERT INTO suppliers (id, company_name, cnpj, address, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.CompanyName, s.CNPJ, s.Address, s.Phone, s.Email,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания поставщика: %w", err)
	}
	return nil
}

func (r *supplierRepo) GetByID(ctx context.Context, id string) (*model.Supplier, error) {
	query := fmt.Sprintf(`SELECT %s FROM suppliers WHERE id = $1`, supplierColumns)

	s, err := scanSupplier(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения поставщика: %w", err)
	}
	return s, nil
}

func (r *supplierRepo) List(ctx context.Context, limit, offset int) ([]*model.Supplier, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM suppliers
		ORDER BY company_name, id
		LIMIT $1 OFFSET $2`, supplierColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка поставщиков: %w", err)
	}
	defer rows.Close()

	var result []*model.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования поставщика: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *supplierRepo) Update(ctx context.Context, s *model.Supplier) error {
	query := `
		UPDATE suppliers SET
			company_name = $2, cnpj = $3, address = $4, phone = $5, email = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.CompanyName, s.CNPJ, s.Address, s.Phone, s.Email,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка обновления поставщика: %w", err)
	}
	return nil
}

func (r *supplierRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления поставщика: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Контакты ---

// ContactRepository — интерфейс для таблицы contacts.
type ContactRepository interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id string) (*model.Contact, error)
	List(ctx context.Context, limit, offset int) ([]*model.Contact, error)
	Delete(ctx context.Context, id string) error
}

type contactRepo struct {
	db DBTX
}

// NewContactRepository создаёт репозиторий контактов.
func NewContactRepository(db DBTX) ContactRepository {
	return &contactRepo{db: db}
}

const contactColumns = `id, name, supplier_name, phone, email, created_at`

func scanContact(row interface{ Scan(dest ...any) error }) (*model.Contact, error) {
	c := &model.Contact{}
	err := row.Scan(&c.ID, &c.Name, &c.SupplierName, &c.Phone, &c.Email, &c.CreatedAt)
	return c, err
}

func (r *contactRepo) Create(ctx context.Context, c *model.Contact) error {
	query := `
		INSERT INTO contacts (id, name, supplier_name, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, c.ID, c.Name, c.SupplierName, c.Phone, c.Email).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания контакта: %w", err)
	}
	return nil
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	query := fmt.Sprintf(`SELECT %s FROM contacts WHERE id = $1`, contactColumns)

	c, err := scanContact(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения контакта: %w", err)
	}
	return c, nil
}

func (r *contactRepo) List(ctx context.Context, limit, offset int) ([]*model.Contact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, contactColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка контактов: %w", err)
	}
	defer rows.Close()

	var result []*model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования контакта: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *contactRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления контакта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Товары ---

// ProductRepository — интерфейс для таблицы products.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	List(ctx context.Context, limit, offset int) ([]*model.Product, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}

type productRepo struct {
	db DBTX
}

// NewProductRepository создаёт репозиторий товаров.
func NewProductRepository(db DBTX) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	query := `
		INSERT INTO products (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	if err := r.db.QueryRow(ctx, query, p.ID, p.Name, p.Description).Scan(&p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания товара: %w", err)
	}
	return nil
}

func (r *productRepo) List(ctx context.Context, limit, offset int) ([]*model.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, created_at FROM products
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка товаров: %w", err)
	}
	defer rows.Close()

	var result []*model.Product
	for rows.Next() {
		p := &model.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования товара: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *productRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта товаров: %w", err)
	}
	return count, nil
}

func (r *productRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления товара: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
