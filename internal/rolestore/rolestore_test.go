package rolestore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/repository"
	"github.com/bigkaa/acme-procurement/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Collaborator
	err   error
	calls int
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) set(c *model.Collaborator) {
	f.mu.Lock()
	f.data[c.ID] = c
	f.mu.Unlock()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{data: make(map[string]*model.Collaborator)}
}

func TestStore_GetCachesRecord(t *testing.T) {
	repo := newFakeRepo()
	repo.set(&model.Collaborator{ID: "u-1", Role: rbac.RoleAdmin})
	s := New(repo, 16, time.Minute, testLogger())
	ctx := context.Background()

	for range 3 {
		rec, err := s.Get(ctx, "u-1")
		if err != nil {
			t.Fatalf("Get() ошибка: %v", err)
		}
		if rec.Role != rbac.RoleAdmin || rec.IsBlocked {
			t.Errorf("Get() = %+v", rec)
		}
	}
	if repo.calls != 1 {
		t.Errorf("обращений к БД = %d, ожидалось 1", repo.calls)
	}
}

func TestStore_ReturnedRecordIsCopy(t *testing.T) {
	repo := newFakeRepo()
	repo.set(&model.Collaborator{ID: "u-1", Role: rbac.RoleCollaborator})
	s := New(repo, 16, time.Minute, testLogger())

	rec, _ := s.Get(context.Background(), "u-1")
	rec.IsBlocked = true

	again, _ := s.Get(context.Background(), "u-1")
	if again.IsBlocked {
		t.Error("изменение результата повлияло на кэш")
	}
}

func TestStore_NotFoundIsNotCached(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo, 16, time.Minute, testLogger())
	ctx := context.Background()

	if _, err := s.Get(ctx, "u-new"); !errors.Is(err, session.ErrRoleNotFound) {
		t.Fatalf("Get() = %v, ожидалась ErrRoleNotFound", err)
	}

	// Сотрудник зарегистрировался — запись видна сразу.
	repo.set(&model.Collaborator{ID: "u-new", Role: rbac.RoleCollaborator})
	rec, err := s.Get(ctx, "u-new")
	if err != nil {
		t.Fatalf("Get() после регистрации: %v", err)
	}
	if rec.Role != rbac.RoleCollaborator {
		t.Errorf("Role = %q", rec.Role)
	}
}

func TestStore_StoreUnavailable(t *testing.T) {
	repo := newFakeRepo()
	boom := errors.New("connection reset")
	repo.err = boom
	s := New(repo, 16, time.Minute, testLogger())

	_, err := s.Get(context.Background(), "u-1")
	if !errors.Is(err, session.ErrStoreUnavailable) || !errors.Is(err, boom) {
		t.Errorf("Get() = %v, ожидалась обёртка ErrStoreUnavailable", err)
	}
	if s.Len() != 0 {
		t.Error("ошибка не должна попадать в кэш")
	}
}

func TestStore_Invalidate(t *testing.T) {
	repo := newFakeRepo()
	repo.set(&model.Collaborator{ID: "u-1", Role: rbac.RoleCollaborator})
	s := New(repo, 16, time.Minute, testLogger())
	ctx := context.Background()

	if _, err := s.Get(ctx, "u-1"); err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}

	repo.set(&model.Collaborator{ID: "u-1", Role: rbac.RoleCollaborator, IsBlocked: true})
	s.Invalidate("u-1")
	s.Invalidate("u-unknown")

	rec, err := s.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if !rec.IsBlocked {
		t.Error("после Invalidate блокировка не видна")
	}
}

func TestStore_TTL(t *testing.T) {
	repo := newFakeRepo()
	repo.set(&model.Collaborator{ID: "u-1", Role: rbac.RoleAdmin})
	s := New(repo, 16, 20*time.Millisecond, testLogger())
	ctx := context.Background()

	if _, err := s.Get(ctx, "u-1"); err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := s.Get(ctx, "u-1"); err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("обращений к БД = %d, ожидалось 2 (запись должна истечь)", repo.calls)
	}
}

// Store удовлетворяет контракту хранилища ролей резолвера.
var _ session.RoleStore = (*Store)(nil)
