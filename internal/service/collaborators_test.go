package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
)

func newCollaboratorService(idp *fakeIDP, repo *fakeCollaborators, cache *fakeCache) *CollaboratorService {
	return NewCollaboratorService(idp, repo, cache, "procurement-app", testLogger())
}

func TestRegister(t *testing.T) {
	idp := newFakeIDP()
	repo := newFakeCollaborators()
	svc := newCollaboratorService(idp, repo, &fakeCache{})

	c, err := svc.Register(context.Background(), Registration{
		Email:    " ana@acme.com ",
		Password: "s3cret",
		Name:     "Ana Souza",
		Position: "Compradora",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if c.Role != rbac.RoleCollaborator || c.IsBlocked {
		t.Errorf("новый сотрудник: role=%s blocked=%v", c.Role, c.IsBlocked)
	}
	if c.Email != "ana@acme.com" {
		t.Errorf("email = %q, ожидался без пробелов", c.Email)
	}
	if _, ok := idp.users[c.ID]; !ok {
		t.Error("ID записи должен совпадать с ID пользователя Keycloak")
	}
	stored, err := repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("запись роли не создана: %v", err)
	}
	if stored.Position != "Compradora" {
		t.Errorf("position = %q", stored.Position)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newCollaboratorService(newFakeIDP(), newFakeCollaborators(), &fakeCache{})

	tests := []struct {
		name string
		reg  Registration
	}{
		{"без email", Registration{Password: "x", Name: "A"}},
		{"без пароля", Registration{Email: "a@acme.com", Name: "A"}},
		{"без имени", Registration{Email: "a@acme.com", Password: "x", Name: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.reg); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидалась ErrValidation, получено %v", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	idp := newFakeIDP()
	svc := newCollaboratorService(idp, newFakeCollaborators(), &fakeCache{})
	reg := Registration{Email: "ana@acme.com", Password: "x", Name: "Ana"}

	if _, err := svc.Register(context.Background(), reg); err != nil {
		t.Fatalf("первая регистрация: %v", err)
	}
	if _, err := svc.Register(context.Background(), reg); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
}

func TestRegister_IDPUnavailable(t *testing.T) {
	idp := newFakeIDP()
	idp.createErr = errBoom
	repo := newFakeCollaborators()
	svc := newCollaboratorService(idp, repo, &fakeCache{})

	_, err := svc.Register(context.Background(), Registration{Email: "a@acme.com", Password: "x", Name: "A"})
	if !errors.Is(err, ErrIDPUnavailable) {
		t.Errorf("ожидалась ErrIDPUnavailable, получено %v", err)
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("запись роли не должна создаваться, записей: %d", n)
	}
}

func TestRegister_CompensatesOnStoreFailure(t *testing.T) {
	idp := newFakeIDP()
	repo := newFakeCollaborators()
	repo.createErr = errBoom
	svc := newCollaboratorService(idp, repo, &fakeCache{})

	_, err := svc.Register(context.Background(), Registration{Email: "a@acme.com", Password: "x", Name: "A"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("ожидалась ошибка хранилища, получено %v", err)
	}
	if len(idp.deleted) != 1 {
		t.Fatalf("пользователь Keycloak должен быть удалён, deleted=%v", idp.deleted)
	}
	if len(idp.users) != 0 {
		t.Errorf("в Keycloak остались пользователи: %v", idp.users)
	}
}

func TestSetBlocked_InvalidatesCache(t *testing.T) {
	repo := newFakeCollaborators(
		&model.Collaborator{ID: "u-admin", Name: "Admin", Role: rbac.RoleAdmin},
		&model.Collaborator{ID: "u-1", Name: "Ana", Role: rbac.RoleCollaborator},
	)
	cache := &fakeCache{}
	svc := newCollaboratorService(newFakeIDP(), repo, cache)

	c, err := svc.SetBlocked(context.Background(), "u-admin", "u-1", true)
	if err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}
	if !c.IsBlocked {
		t.Error("сотрудник должен быть заблокирован")
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "u-1" {
		t.Errorf("invalidated = %v", cache.invalidated)
	}

	if _, err := svc.SetBlocked(context.Background(), "u-admin", "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestSetBlocked_Self(t *testing.T) {
	repo := newFakeCollaborators(&model.Collaborator{ID: "u-admin", Role: rbac.RoleAdmin})
	cache := &fakeCache{}
	svc := newCollaboratorService(newFakeIDP(), repo, cache)

	if _, err := svc.SetBlocked(context.Background(), "u-admin", "u-admin", true); !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидалась ErrForbidden, получено %v", err)
	}
	if len(cache.invalidated) != 0 {
		t.Errorf("кэш не должен сбрасываться: %v", cache.invalidated)
	}
}

func TestSetRole(t *testing.T) {
	repo := newFakeCollaborators(
		&model.Collaborator{ID: "u-admin", Role: rbac.RoleAdmin},
		&model.Collaborator{ID: "u-1", Role: rbac.RoleCollaborator},
	)
	cache := &fakeCache{}
	svc := newCollaboratorService(newFakeIDP(), repo, cache)
	ctx := context.Background()

	c, err := svc.SetRole(ctx, "u-admin", "u-1", "ADMIN")
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if c.Role != rbac.RoleAdmin {
		t.Errorf("role = %s", c.Role)
	}
	if len(cache.invalidated) != 1 {
		t.Errorf("invalidated = %v", cache.invalidated)
	}

	if _, err := svc.SetRole(ctx, "u-admin", "u-1", "readonly"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ожидалась ErrInvalidRole, получено %v", err)
	}
	if _, err := svc.SetRole(ctx, "u-admin", "u-admin", "colaborador"); !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидалась ErrForbidden, получено %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	repo := newFakeCollaborators(&model.Collaborator{ID: "u-1", Name: "Ana", Position: "Analista"})
	svc := newCollaboratorService(newFakeIDP(), repo, &fakeCache{})
	ctx := context.Background()

	position := "Gerente"
	c, err := svc.UpdateProfile(ctx, "u-1", model.CollaboratorProfile{Position: &position})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if c.Position != "Gerente" || c.Name != "Ana" {
		t.Errorf("профиль = %+v", c)
	}

	empty := " "
	if _, err := svc.UpdateProfile(ctx, "u-1", model.CollaboratorProfile{Name: &empty}); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, "missing", model.CollaboratorProfile{Position: &position}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestList(t *testing.T) {
	repo := newFakeCollaborators(
		&model.Collaborator{ID: "1", Name: "Bruno"},
		&model.Collaborator{ID: "2", Name: "Ana"},
		&model.Collaborator{ID: "3", Name: "Carla"},
	)
	svc := newCollaboratorService(newFakeIDP(), repo, &fakeCache{})

	items, total, err := svc.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].Name != "Ana" {
		t.Errorf("total=%d items=%d first=%s", total, len(items), items[0].Name)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	idp := newFakeIDP()
	svc := newCollaboratorService(idp, newFakeCollaborators(), &fakeCache{})
	ctx := context.Background()
	id, _ := idp.CreateUser(ctx, keycloakUser("ana@acme.com"))

	if err := svc.RequestPasswordReset(ctx, "ana@acme.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if len(idp.emails) != 1 || idp.emails[0] != id+":UPDATE_PASSWORD" {
		t.Errorf("emails = %v", idp.emails)
	}

	if err := svc.RequestPasswordReset(ctx, "nobody@acme.com"); err != nil {
		t.Errorf("неизвестный email не должен быть ошибкой: %v", err)
	}
	if err := svc.RequestPasswordReset(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}

	idp.findErr = errBoom
	if err := svc.RequestPasswordReset(ctx, "ana@acme.com"); !errors.Is(err, ErrIDPUnavailable) {
		t.Errorf("ожидалась ErrIDPUnavailable, получено %v", err)
	}
}
