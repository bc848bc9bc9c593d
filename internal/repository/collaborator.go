package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
)

// CollaboratorRepository — интерфейс CRUD для таблицы collaborators.
type CollaboratorRepository interface {
	// Create создаёт запись сотрудника. ErrConflict — id или email заняты.
	Create(ctx context.Context, c *model.Collaborator) error
	// GetByID возвращает сотрудника по Keycloak user ID.
	GetByID(ctx context.Context, id string) (*model.Collaborator, error)
	// List возвращает сотрудников, отсортированных по имени (с пагинацией).
	List(ctx context.Context, limit, offset int) ([]*model.Collaborator, error)
	// Count возвращает количество сотрудников.
	Count(ctx context.Context) (int, error)
	// UpdateProfile обновляет изменяемые поля профиля.
	UpdateProfile(ctx context.Context, id string, p model.CollaboratorProfile) (*model.Collaborator, error)
	// SetBlocked устанавливает признак блокировки.
	SetBlocked(ctx context.Context, id string, blocked bool) (*model.Collaborator, error)
	// SetRole меняет роль сотрудника.
	SetRole(ctx context.Context, id string, role rbac.Role) (*model.Collaborator, error)
	// Delete удаляет запись сотрудника.
	Delete(ctx context.Context, id string) error
}

// collaboratorRepo — реализация CollaboratorRepository.
type collaboratorRepo struct {
	db DBTX
}

// NewCollaboratorRepository создаёт репозиторий сотрудников.
func NewCollaboratorRepository(db DBTX) CollaboratorRepository {
	return &collaboratorRepo{db: db}
}

const collaboratorColumns = `id, email, name, employee_number, gender, birth_date, position,
	role, is_blocked, profile_picture, created_at, updated_at`

func scanCollaborator(row interface{ Scan(dest ...any) error }) (*model.Collaborator, error) {
	c := &model.Collaborator{}
	var role string
	err := row.Scan(
		&c.ID, &c.Email, &c.Name, &c.EmployeeNumber, &c.Gender, &c.BirthDate, &c.Position,
		&role, &c.IsBlocked, &c.ProfilePicture, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// Неизвестная роль остаётся как есть: сессия по такой записи не будет активной.
	c.Role = rbac.Role(role)
	return c, nil
}

func (r *collaboratorRepo) Create(ctx context.Context, c *model.Collaborator) error {
	query := `
		INSERT INTO collaborators (id, email, name, employee_number, gender, birth_date, position,
			role, is_blocked, profile_picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.Email, c.Name, c.EmployeeNumber, c.Gender, c.BirthDate, c.Position,
		string(c.Role), c.IsBlocked, c.ProfilePicture,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания сотрудника: %w", err)
	}
	return nil
}

func (r *collaboratorRepo) GetByID(ctx context.Context, id string) (*model.Collaborator, error) {
	query := fmt.Sprintf(`SELECT %s FROM collaborators WHERE id = $1`, collaboratorColumns)

	c, err := scanCollaborator(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сотрудника: %w", err)
	}
	return c, nil
}

func (r *collaboratorRepo) List(ctx context.Context, limit, offset int) ([]*model.Collaborator, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM collaborators
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, collaboratorColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сотрудников: %w", err)
	}
	defer rows.Close()

	var result []*model.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сотрудника: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *collaboratorRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM collaborators`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта сотрудников: %w", err)
	}
	return count, nil
}

func (r *collaboratorRepo) UpdateProfile(ctx context.Context, id string, p model.CollaboratorProfile) (*model.Collaborator, error) {
	query := fmt.Sprintf(`
		UPDATE collaborators SET
			name = COALESCE($2, name),
			employee_number = COALESCE($3, employee_number),
			gender = COALESCE($4, gender),
			birth_date = COALESCE($5, birth_date),
			position = COALESCE($6, position),
			profile_picture = COALESCE($7, profile_picture),
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, collaboratorColumns)

	c, err := scanCollaborator(r.db.QueryRow(ctx, query,
		id, p.Name, p.EmployeeNumber, p.Gender, p.BirthDate, p.Position, p.ProfilePicture,
	))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return c, nil
}

func (r *collaboratorRepo) SetBlocked(ctx context.Context, id string, blocked bool) (*model.Collaborator, error) {
	query := fmt.Sprintf(`
		UPDATE collaborators SET is_blocked = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, collaboratorColumns)

	c, err := scanCollaborator(r.db.QueryRow(ctx, query, id, blocked))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка изменения блокировки: %w", err)
	}
	return c, nil
}

func (r *collaboratorRepo) SetRole(ctx context.Context, id string, role rbac.Role) (*model.Collaborator, error) {
	query := fmt.Sprintf(`
		UPDATE collaborators SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, collaboratorColumns)

	c, err := scanCollaborator(r.db.QueryRow(ctx, query, id, string(role)))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка изменения роли: %w", err)
	}
	return c, nil
}

func (r *collaboratorRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM collaborators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления сотрудника: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
