package session

import (
	"context"
	"errors"
)

// Ошибки разрешения сессии.
var (
	// ErrInvalidCredential — неверный email или пароль.
	ErrInvalidCredential = errors.New("неверные учётные данные")
	// ErrRoleNotFound — для identity нет записи роли (аккаунт не подготовлен).
	ErrRoleNotFound = errors.New("запись роли не найдена")
	// ErrStoreUnavailable — хранилище ролей недоступно.
	ErrStoreUnavailable = errors.New("хранилище ролей недоступно")
	// ErrResolverClosed — резолвер уже остановлен.
	ErrResolverClosed = errors.New("резолвер сессии остановлен")
	// ErrNotStarted — резолвер ещё не запущен.
	ErrNotStarted = errors.New("резолвер сессии не запущен")
)

// Credential — учётные данные для входа по email и паролю.
type Credential struct {
	Email    string
	Password string //nolint:gosec // G117: поле структуры, а не захардкоженный секрет
}

// AuthProvider — внешний провайдер идентификации.
type AuthProvider interface {
	// Subscribe подписывает fn на изменения сессии провайдера.
	// Пустой identity означает отсутствие пользователя.
	// Текущее состояние доставляется сразу при подписке, далее — каждое
	// изменение в порядке возникновения. Возвращает функцию отписки.
	Subscribe(fn func(identity string)) (unsubscribe func())
	// SignIn проверяет учётные данные и открывает сессию провайдера.
	// Возвращает ErrInvalidCredential при неверных данных.
	SignIn(ctx context.Context, cred Credential) (identity string, err error)
	// SignOut закрывает сессию провайдера.
	SignOut(ctx context.Context) error
}

// RoleStore — хранилище записей ролей, ключ — identity.
type RoleStore interface {
	// Get возвращает запись роли.
	// ErrRoleNotFound — записи нет; ошибка, обёртывающая ErrStoreUnavailable, — сбой хранилища.
	Get(ctx context.Context, identity string) (*RoleRecord, error)
}

// SessionRevoker — необязательная возможность провайдера: аннулировать
// локальный токен без уведомления о выходе.
type SessionRevoker interface {
	RevokeSession(ctx context.Context) error
}

// Listener получает каждый переход сессии.
type Listener func(Session)
