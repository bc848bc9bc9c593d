// Пакет rolestore — хранилище записей ролей API поверх таблицы collaborators.
//
// Store реализует session.RoleStore и кэширует найденные записи в LRU-кэше
// с TTL (hashicorp/golang-lru/v2/expirable). Отсутствие записи не кэшируется,
// чтобы только что зарегистрированный сотрудник получил роль сразу.
// После блокировки или смены роли запись инвалидируется явно.
package rolestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/acme-procurement/internal/domain/model"
	"github.com/bigkaa/acme-procurement/internal/repository"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// Prometheus-метрики кэша записей ролей.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procurement_role_cache_hits_total",
		Help: "Общее количество попаданий в кэш записей ролей.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procurement_role_cache_misses_total",
		Help: "Общее количество промахов кэша записей ролей.",
	})
)

// CollaboratorGetter — источник записей сотрудников.
type CollaboratorGetter interface {
	GetByID(ctx context.Context, id string) (*model.Collaborator, error)
}

// Store — кэширующее хранилище записей ролей.
type Store struct {
	repo   CollaboratorGetter
	cache  *expirable.LRU[string, session.RoleRecord]
	logger *slog.Logger
}

// New создаёт Store. maxSize — максимальное число записей, ttl — время жизни записи.
func New(repo CollaboratorGetter, maxSize int, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		cache:  expirable.NewLRU[string, session.RoleRecord](maxSize, nil, ttl),
		logger: logger.With(slog.String("component", "role_store")),
	}
}

// Get возвращает запись роли по identity.
// session.ErrRoleNotFound — сотрудник не зарегистрирован;
// ошибка с session.ErrStoreUnavailable — сбой базы данных.
func (s *Store) Get(ctx context.Context, identity string) (*session.RoleRecord, error) {
	if rec, ok := s.cache.Get(identity); ok {
		cacheHitsTotal.Inc()
		return &rec, nil
	}
	cacheMissesTotal.Inc()

	c, err := s.repo.GetByID(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, session.ErrRoleNotFound
		}
		s.logger.Error("Ошибка чтения записи роли",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}

	rec := RecordOf(c)
	s.cache.Add(identity, rec)
	return &rec, nil
}

// Invalidate удаляет запись из кэша (после блокировки или смены роли).
func (s *Store) Invalidate(identity string) {
	if s.cache.Remove(identity) {
		s.logger.Debug("Запись роли удалена из кэша", slog.String("identity", identity))
	}
}

// Len возвращает число записей в кэше.
func (s *Store) Len() int {
	return s.cache.Len()
}

// RecordOf извлекает запись роли из записи сотрудника.
func RecordOf(c *model.Collaborator) session.RoleRecord {
	return session.RoleRecord{Role: c.Role, IsBlocked: c.IsBlocked}
}
