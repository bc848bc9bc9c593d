// Пакет model — доменные модели системы закупок ACME.
package model

import (
	"time"

	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
)

// Collaborator — сотрудник компании. Хранится в таблице collaborators
// и служит хранилищем записей ролей: ключ — Keycloak user ID (sub).
type Collaborator struct {
	// ID — Keycloak user ID (sub)
	ID string
	// Email — адрес электронной почты (логин)
	Email string
	// Name — имя и фамилия
	Name string
	// EmployeeNumber — табельный номер
	EmployeeNumber string
	// Gender — пол (свободная строка из формы регистрации)
	Gender string
	// BirthDate — дата рождения, nil если не указана
	BirthDate *time.Time
	// Position — должность
	Position string
	// Role — роль (admin, colaborador)
	Role rbac.Role
	// IsBlocked — заблокирован администратором
	IsBlocked bool
	// ProfilePicture — ссылка на фото профиля
	ProfilePicture string
	// CreatedAt — время регистрации
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// CollaboratorProfile — изменяемые сотрудником поля профиля.
// nil означает «не менять».
type CollaboratorProfile struct {
	Name           *string
	EmployeeNumber *string
	Gender         *string
	BirthDate      *time.Time
	Position       *string
	ProfilePicture *string
}
