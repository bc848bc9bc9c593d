// Пакет routegate — Route Gate: чистое отображение сессии в набор доступных экранов.
//
// Resolve не имеет побочных эффектов и скрытого состояния: одинаковая сессия
// всегда даёт одинаковый RouteSet. Заблокированный или неподготовленный
// пользователь никогда не получает функциональных экранов.
package routegate

import (
	"slices"

	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// Screen — имя экрана приложения.
type Screen string

// Служебные и публичные экраны.
const (
	Loading              Screen = "loading"
	Login                Screen = "login"
	RegisterCollaborator Screen = "register_collaborator"
	BlockedNotice        Screen = "blocked_notice"
)

// Функциональные экраны.
const (
	Home Screen = "home"

	// Администратор.
	Suppliers         Screen = "suppliers"
	Contacts          Screen = "contacts"
	Products          Screen = "products"
	RequisitionReview Screen = "requisition_review"
	Quotations        Screen = "quotations"

	// Сотрудник.
	NewRequisition  Screen = "new_requisition"
	MyRequisitions  Screen = "my_requisitions"
	ProfileSettings Screen = "profile_settings"
)

var (
	loadingScreens   = []Screen{Loading}
	anonymousScreens = []Screen{Login, RegisterCollaborator}
	blockedScreens   = []Screen{BlockedNotice}
	adminScreens     = []Screen{Home, Suppliers, Contacts, Products, RequisitionReview, Quotations}
	collabScreens    = []Screen{Home, NewRequisition, MyRequisitions, ProfileSettings}
)

// RouteSet — набор доступных экранов и начальный экран.
// Порядок Screens фиксирован для каждого статуса и роли и передаётся
// по сети как есть (GET /api/v1/session): клиент сравнивает наборы через Equal.
type RouteSet struct {
	Screens []Screen `json:"screens"`
	Initial Screen   `json:"initial"`
}

// Contains сообщает, доступен ли экран.
func (rs RouteSet) Contains(s Screen) bool {
	return slices.Contains(rs.Screens, s)
}

// Equal сравнивает наборы с учётом порядка экранов. Наборы из Resolve
// одного и того же состояния всегда равны.
func (rs RouteSet) Equal(other RouteSet) bool {
	return rs.Initial == other.Initial && slices.Equal(rs.Screens, other.Screens)
}

// Resolve вычисляет RouteSet по сессии.
// Каждый вызов возвращает новый срез: изменение результата не влияет на следующие вызовы.
func Resolve(s session.Session) RouteSet {
	switch s.Status {
	case session.StatusAnonymous:
		return newSet(anonymousScreens, Login)
	case session.StatusBlocked:
		return newSet(blockedScreens, BlockedNotice)
	case session.StatusActive:
		switch s.Role {
		case rbac.RoleAdmin:
			return newSet(adminScreens, Home)
		case rbac.RoleCollaborator:
			return newSet(collabScreens, Home)
		}
		// Неизвестная роль: только экраны входа.
		return newSet(anonymousScreens, Login)
	default:
		return newSet(loadingScreens, Loading)
	}
}

// IsPublic сообщает, что экран доступен без активной сессии.
func IsPublic(s Screen) bool {
	switch s {
	case Loading, Login, RegisterCollaborator, BlockedNotice:
		return true
	}
	return false
}

// AdminOnly сообщает, что экран доступен только администратору.
func AdminOnly(s Screen) bool {
	return slices.Contains(adminScreens, s) && !slices.Contains(collabScreens, s)
}

// CollaboratorOnly сообщает, что экран доступен только сотруднику.
func CollaboratorOnly(s Screen) bool {
	return slices.Contains(collabScreens, s) && !slices.Contains(adminScreens, s)
}

// Functional сообщает, что экран требует активной сессии.
func Functional(s Screen) bool {
	return slices.Contains(adminScreens, s) || slices.Contains(collabScreens, s)
}

func newSet(screens []Screen, initial Screen) RouteSet {
	return RouteSet{Screens: slices.Clone(screens), Initial: initial}
}
