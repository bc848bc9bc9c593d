// Пакет rbac — роли пользователей системы закупок ACME.
// Роль хранится в записи сотрудника (collaborators.role) и определяет,
// какой набор экранов доступен пользователю.
// Допустимые значения в хранилище: "admin", "colaborador".
package rbac

import "strings"

// Role — уровень авторизации пользователя.
type Role string

// Роли в порядке возрастания привилегий.
const (
	// RoleNone — роль не определена (нет активной сессии).
	RoleNone Role = ""
	// RoleCollaborator — сотрудник: создаёт и отслеживает свои заявки.
	RoleCollaborator Role = "colaborador"
	// RoleAdmin — администратор: поставщики, контакты, товары, котировки.
	RoleAdmin Role = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[Role]int{
	RoleCollaborator: 1,
	RoleAdmin:        2,
}

// ParseRole преобразует значение из хранилища в Role.
// Регистр и пробелы по краям игнорируются.
// Для неизвестного значения возвращает RoleNone и false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidRole(r) {
		return RoleNone, false
	}
	return r, true
}

// IsValidRole проверяет, является ли роль допустимой (не RoleNone).
func IsValidRole(r Role) bool {
	_, ok := roleWeight[r]
	return ok
}

// AtLeast проверяет, что роль r не ниже роли min.
// RoleNone не удовлетворяет никакому требованию.
func (r Role) AtLeast(minRole Role) bool {
	w, ok := roleWeight[r]
	if !ok {
		return false
	}
	return w >= roleWeight[minRole]
}

// String возвращает значение роли в формате хранилища.
func (r Role) String() string {
	return string(r)
}
