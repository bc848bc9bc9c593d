// Пакет session — сессия пользователя и её разрешение (Session Resolver).
//
// Сессия — эфемерная сущность времени жизни процесса:
//
//	Unresolved ──(нет identity)──────────────→ Anonymous
//	     │
//	     └─(identity + запись роли)──→ Active(role) | Blocked | Anonymous (нет записи)
//
// Выход из системы возвращает сессию в Anonymous.
// Инвариант: Role != RoleNone тогда и только тогда, когда Status == StatusActive.
package session

import (
	"fmt"

	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
)

// Status — состояние сессии.
type Status int

const (
	// StatusUnresolved — состояние ещё не определено (загрузка).
	StatusUnresolved Status = iota
	// StatusAnonymous — нет аутентифицированного пользователя.
	StatusAnonymous
	// StatusActive — пользователь вошёл, роль определена.
	StatusActive
	// StatusBlocked — пользователь вошёл, но заблокирован администратором.
	StatusBlocked
)

var statusNames = map[Status]string{
	StatusUnresolved: "unresolved",
	StatusAnonymous:  "anonymous",
	StatusActive:     "active",
	StatusBlocked:    "blocked",
}

// String возвращает имя статуса.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText сериализует статус в JSON/текст по имени.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session — текущая сессия процесса.
// Значение сравнимо через ==; копия не разделяет состояние с оригиналом.
type Session struct {
	// Identity — внешний идентификатор пользователя (sub из IdP), пусто для Anonymous/Unresolved.
	Identity string
	// Status — состояние сессии.
	Status Status
	// Role — роль пользователя; отлична от RoleNone только при StatusActive.
	Role rbac.Role
}

// Unresolved возвращает сессию в состоянии загрузки.
func Unresolved() Session {
	return Session{Status: StatusUnresolved}
}

// Anonymous возвращает сессию без пользователя.
func Anonymous() Session {
	return Session{Status: StatusAnonymous}
}

// Active возвращает активную сессию с ролью.
// Недопустимая роль или пустой identity дают Anonymous: сессия без роли
// не может быть активной.
func Active(identity string, role rbac.Role) Session {
	if identity == "" || !rbac.IsValidRole(role) {
		return Anonymous()
	}
	return Session{Identity: identity, Status: StatusActive, Role: role}
}

// Blocked возвращает сессию заблокированного пользователя. Роль не раскрывается.
func Blocked(identity string) Session {
	if identity == "" {
		return Anonymous()
	}
	return Session{Identity: identity, Status: StatusBlocked}
}

// IsActive сообщает, что сессия активна.
func (s Session) IsActive() bool {
	return s.Status == StatusActive
}

// Valid проверяет инвариант сессии.
func (s Session) Valid() bool {
	switch s.Status {
	case StatusActive:
		return s.Identity != "" && rbac.IsValidRole(s.Role)
	case StatusBlocked:
		return s.Identity != "" && s.Role == rbac.RoleNone
	case StatusUnresolved, StatusAnonymous:
		return s.Identity == "" && s.Role == rbac.RoleNone
	default:
		return false
	}
}

// String — краткое представление для логов.
func (s Session) String() string {
	if s.Status == StatusActive {
		return fmt.Sprintf("%s(%s, %s)", s.Status, s.Identity, s.Role)
	}
	if s.Identity != "" {
		return fmt.Sprintf("%s(%s)", s.Status, s.Identity)
	}
	return s.Status.String()
}

// RoleRecord — запись роли пользователя из хранилища ролей.
// Только читается резолвером, никогда не записывается.
type RoleRecord struct {
	// Role — роль из хранилища (admin, colaborador).
	Role rbac.Role
	// IsBlocked — пользователь заблокирован администратором.
	IsBlocked bool
}

// FromRecord вычисляет сессию по identity и записи роли.
// Используется резолвером и серверной авторизацией API, чтобы правила были едины:
//   - записи нет → Anonymous (аккаунт не подготовлен);
//   - заблокирован → Blocked;
//   - роль неизвестна → Anonymous;
//   - иначе → Active(role).
func FromRecord(identity string, rec *RoleRecord) Session {
	if identity == "" || rec == nil {
		return Anonymous()
	}
	if rec.IsBlocked {
		return Blocked(identity)
	}
	return Active(identity, rec.Role)
}
