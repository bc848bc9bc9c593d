// Пакет service — бизнес-логика API системы закупок.
// collaborators.go — регистрация сотрудников и управление их записями ролей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/keycloak"
	"github.com/bigkaa/acme-procurement/internal/repository"
)

// IdentityAdmin — операции Keycloak Admin REST API, нужные сервису сотрудников.
type IdentityAdmin interface {
	CreateUser(ctx context.Context, u keycloak.NewUser) (string, error)
	DeleteUser(ctx context.Context, id string) error
	FindUserByEmail(ctx context.Context, email string) (*keycloak.KeycloakUser, error)
	ExecuteActionsEmail(ctx context.Context, id, clientID string, actions []string) error
}

// RoleCache — кэш записей ролей, который нужно сбрасывать при изменении записи.
type RoleCache interface {
	Invalidate(identity string)
}

// Registration — данные формы регистрации сотрудника.
type Registration struct {
	Email          string
	Password       string //nolint:gosec // G117: поле структуры, а не захардкоженный секрет
	Name           string
	EmployeeNumber string
	Gender         string
	BirthDate      *time.Time
	Position       string
}

// CollaboratorService — сервис сотрудников.
// Keycloak хранит учётные данные, PostgreSQL — запись роли.
type CollaboratorService struct {
	idp         IdentityAdmin
	repo        repository.CollaboratorRepository
	cache       RoleCache
	appClientID string
	logger      *slog.Logger
}

// NewCollaboratorService создаёт сервис сотрудников.
// appClientID — клиент приложения, на который ведут ссылки писем Keycloak.
func NewCollaboratorService(
	idp IdentityAdmin,
	repo repository.CollaboratorRepository,
	cache RoleCache,
	appClientID string,
	logger *slog.Logger,
) *CollaboratorService {
	return &CollaboratorService{
		idp:         idp,
		repo:        repo,
		cache:       cache,
		appClientID: appClientID,
		logger:      logger.With(slog.String("component", "collaborator_service")),
	}
}

// Register создаёт пользователя Keycloak и запись роли colaborador (не заблокирован).
// Если запись роли не создана, пользователь Keycloak удаляется.
func (s *CollaboratorService) Register(ctx context.Context, r Registration) (*model.Collaborator, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Email == "" || r.Password == "" || r.Name == "" {
		return nil, fmt.Errorf("%w: email, пароль и имя обязательны", ErrValidation)
	}

	id, err := s.idp.CreateUser(ctx, keycloak.NewUser{Email: r.Email, Name: r.Name, Password: r.Password})
	if err != nil {
		if errors.Is(err, keycloak.ErrUserExists) {
			return nil, fmt.Errorf("%w: email '%s' уже зарегистрирован", ErrConflict, r.Email)
		}
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	c := &model.Collaborator{
		ID:             id,
		Email:          r.Email,
		Name:           r.Name,
		EmployeeNumber: r.EmployeeNumber,
		Gender:         r.Gender,
		BirthDate:      r.BirthDate,
		Position:       r.Position,
		Role:           rbac.RoleCollaborator,
		IsBlocked:      false,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		s.compensate(id)
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: email '%s' уже зарегистрирован", ErrConflict, r.Email)
		}
		return nil, fmt.Errorf("создание записи сотрудника: %w", err)
	}

	s.logger.Info("Сотрудник зарегистрирован",
		slog.String("collaborator_id", id),
		slog.String("email", r.Email),
	)
	return c, nil
}

// compensate удаляет пользователя Keycloak после неудачной регистрации.
func (s *CollaboratorService) compensate(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.idp.DeleteUser(ctx, id); err != nil {
		s.logger.Error("Не удалось удалить пользователя Keycloak после ошибки регистрации",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("Пользователь Keycloak удалён после ошибки регистрации",
		slog.String("user_id", id),
	)
}

// Get возвращает сотрудника по ID.
func (s *CollaboratorService) Get(ctx context.Context, id string) (*model.Collaborator, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return c, nil
}

// List возвращает страницу сотрудников и общее количество.
func (s *CollaboratorService) List(ctx context.Context, limit, offset int) ([]*model.Collaborator, int, error) {
	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateProfile изменяет профиль сотрудника. Пустое имя недопустимо.
func (s *CollaboratorService) UpdateProfile(ctx context.Context, id string, p model.CollaboratorProfile) (*model.Collaborator, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, fmt.Errorf("%w: имя не может быть пустым", ErrValidation)
	}
	c, err := s.repo.UpdateProfile(ctx, id, p)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return c, nil
}

// SetBlocked блокирует или разблокирует сотрудника.
// Администратор не может заблокировать сам себя.
func (s *CollaboratorService) SetBlocked(ctx context.Context, actorID, id string, blocked bool) (*model.Collaborator, error) {
	if blocked && actorID == id {
		return nil, fmt.Errorf("%w: нельзя заблокировать собственную учётную запись", ErrForbidden)
	}

	c, err := s.repo.SetBlocked(ctx, id, blocked)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.cache.Invalidate(id)

	s.logger.Info("Изменена блокировка сотрудника",
		slog.String("collaborator_id", id),
		slog.Bool("blocked", blocked),
		slog.String("by", actorID),
	)
	return c, nil
}

// SetRole меняет роль сотрудника.
// Администратор не может понизить сам себя.
func (s *CollaboratorService) SetRole(ctx context.Context, actorID, id, role string) (*model.Collaborator, error) {
	r, ok := rbac.ParseRole(role)
	if !ok {
		return nil, ErrInvalidRole
	}
	if actorID == id && r != rbac.RoleAdmin {
		return nil, fmt.Errorf("%w: нельзя понизить собственную роль", ErrForbidden)
	}

	c, err := s.repo.SetRole(ctx, id, r)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.cache.Invalidate(id)

	s.logger.Info("Изменена роль сотрудника",
		slog.String("collaborator_id", id),
		slog.String("role", r.String()),
		slog.String("by", actorID),
	)
	return c, nil
}

// RequestPasswordReset отправляет письмо Keycloak со сменой пароля.
// Неизвестный email не считается ошибкой, чтобы не раскрывать наличие аккаунта.
func (s *CollaboratorService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email обязателен", ErrValidation)
	}

	user, err := s.idp.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, keycloak.ErrUserNotFound) {
			s.logger.Info("Запрошен сброс пароля для неизвестного email")
			return nil
		}
		return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	if err := s.idp.ExecuteActionsEmail(ctx, user.ID, s.appClientID, []string{"UPDATE_PASSWORD"}); err != nil {
		if errors.Is(err, keycloak.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	s.logger.Info("Отправлено письмо для сброса пароля", slog.String("user_id", user.ID))
	return nil
}
