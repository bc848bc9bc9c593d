// Пакет database — пул соединений PostgreSQL (pgxpool), схема закупок
// (golang-migrate, embedded миграции) и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/acme-procurement/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	pingTimeout  = 3 * time.Second
	firstBackoff = 250 * time.Millisecond
	maxBackoff   = 5 * time.Second
)

// ErrDirtySchema — предыдущая миграция прервана, схема требует ручного исправления.
var ErrDirtySchema = errors.New("схема базы данных в состоянии dirty")

// Connect создаёт пул размером cfg.DBMaxConns и ждёт PostgreSQL не дольше
// cfg.DBConnectTimeout.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns) //nolint:gosec // G115: диапазон проверен в config
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "procurement-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := waitReady(ctx, pool, cfg.DBConnectTimeout, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", cfg.DBMaxConns),
	)
	return pool, nil
}

// waitReady повторяет ping с растущей паузой, пока не истечёт timeout.
func waitReady(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
		err := pool.Ping(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}

		delay := backoff(attempt)
		logger.Warn("PostgreSQL недоступен, повтор",
			slog.Int("attempt", attempt),
			slog.String("retry_in", delay.String()),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

// backoff — пауза перед повтором attempt: удваивается до maxBackoff.
func backoff(attempt int) time.Duration {
	d := firstBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// Migrate приводит схему закупок к последней версии и возвращает её номер.
func Migrate(cfg *config.Config, logger *slog.Logger) (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return 0, fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return 0, fmt.Errorf("ошибка чтения версии схемы: %w", err)
	case dirty:
		return before, fmt.Errorf("%w: версия %d", ErrDirtySchema, before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	after, _, err := m.Version()
	if err != nil {
		return before, fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}

	if after == before {
		logger.Info("Схема актуальна", slog.Uint64("version", uint64(after)))
	} else {
		logger.Info("Миграции применены",
			slog.Uint64("from", uint64(before)),
			slog.Uint64("to", uint64(after)),
		)
	}
	return after, nil
}

// ReadinessChecker — готовность PostgreSQL для /health/ready:
// ping и загрузка пула соединений.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady возвращает "fail", если ping не прошёл, и "degraded",
// если все соединения пула заняты.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	// Ping занимает соединение: при исчерпанном пуле он ждал бы до таймаута.
	stat := c.pool.Stat()
	status, msg := poolStatus(stat.AcquiredConns(), stat.MaxConns())
	if status != "ok" {
		return status, msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return status, msg
}

// poolStatus оценивает загрузку пула.
func poolStatus(acquired, maxConns int32) (string, string) {
	msg := fmt.Sprintf("соединений занято %d из %d", acquired, maxConns)
	if maxConns > 0 && acquired >= maxConns {
		return "degraded", "пул исчерпан: " + msg
	}
	return "ok", msg
}
