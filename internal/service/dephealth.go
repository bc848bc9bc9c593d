// dephealth.go — зависимости API закупок в topologymetrics.
//
// Мониторятся:
//   - postgresql — pgcheck через pgxpool (*sql.DB адаптер), critical
//   - keycloak-jwks — HTTP-проверка JWKS realm, critical: без ключей не проверить ни один токен
//   - keycloak-admin — Admin API через сервисный аккаунт, не critical: от него зависят
//     только регистрация сотрудника и сброс пароля
//
// Последний результат каждой проверки доступен через Readiness и попадает
// в /health/ready без повторного запроса к зависимости.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для JWKS
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/acme-procurement/internal/keycloak"
)

// Имена зависимостей в метриках и /health/ready.
const (
	DepPostgres      = "postgresql"
	DepKeycloakJWKS  = "keycloak-jwks"
	DepKeycloakAdmin = "keycloak-admin"
)

// ErrDephealthConfig — неполная конфигурация мониторинга.
var ErrDephealthConfig = errors.New("некорректная конфигурация мониторинга зависимостей")

// RealmPinger — проверка Keycloak Admin API (keycloak.Client).
type RealmPinger interface {
	Ping(ctx context.Context) error
}

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — вершина графа (procurement-api)
	ServiceID string
	// Group — PA_DEPHEALTH_GROUP
	Group string
	// DB — *sql.DB из stdlib.OpenDBFromPool
	DB *sql.DB
	// PGConnURL — URL PostgreSQL для лейблов, пароль не нужен
	PGConnURL string
	// KeycloakJWKSURL — JWKS endpoint realm
	KeycloakJWKSURL string
	// KeycloakAdmin — nil отключает проверку Admin API
	KeycloakAdmin RealmPinger
	// KeycloakAdminURL — адрес Admin API realm для лейблов
	KeycloakAdminURL string
	// CheckInterval — PA_DEPHEALTH_CHECK_INTERVAL
	CheckInterval time.Duration
	// TLSSkipVerify — self-signed сертификат Keycloak в dev-среде
	TLSSkipVerify bool
	// Registerer — nil означает глобальный Prometheus registry
	Registerer prometheus.Registerer
}

// DephealthService — мониторинг зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService регистрирует зависимости API закупок.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("%w: нет подключения к PostgreSQL", ErrDephealthConfig)
	}
	if cfg.KeycloakJWKSURL == "" {
		return nil, fmt.Errorf("%w: не задан JWKS URL", ErrDephealthConfig)
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// pgcheck + AddDependency напрямую: contrib/sqldb тянет драйвер MySQL.
		dephealth.AddDependency(DepPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		// /health у Keycloak есть только на management порту, поэтому
		// проверяется сам JWKS endpoint.
		dephealth.HTTP(DepKeycloakJWKS,
			dephealth.FromURL(cfg.KeycloakJWKSURL),
			dephealth.WithHTTPHealthPath(healthPath(cfg.KeycloakJWKSURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(cfg.TLSSkipVerify),
		),
	}

	if cfg.KeycloakAdmin != nil {
		if cfg.KeycloakAdminURL == "" {
			return nil, fmt.Errorf("%w: не задан адрес Admin API", ErrDephealthConfig)
		}
		opts = append(opts, dephealth.AddDependency(DepKeycloakAdmin, dephealth.TypeHTTP,
			&adminAPIChecker{admin: cfg.KeycloakAdmin},
			dephealth.FromURL(cfg.KeycloakAdminURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		))
	}

	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние endpoint'ов: ключ name:host:port, true — ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// Readiness возвращает проверку готовности по последнему результату
// зависимости name. Реализует handlers.ReadinessChecker.
func (ds *DephealthService) Readiness(name string) *DependencyReadiness {
	return &DependencyReadiness{ds: ds, name: name}
}

// DependencyReadiness — последний результат проверки одной зависимости.
type DependencyReadiness struct {
	ds   *DephealthService
	name string
}

// CheckReady: до первой проверки — degraded, после — ok или fail.
func (r *DependencyReadiness) CheckReady() (string, string) {
	details := r.ds.dh.HealthDetails()
	if details == nil {
		return "degraded", "мониторинг зависимостей не запущен"
	}

	var found bool
	for _, es := range details {
		if es.Name != r.name {
			continue
		}
		found = true
		status, msg := endpointReadiness(es)
		if status != "ok" {
			return status, msg
		}
	}
	if !found {
		return "fail", "зависимость не зарегистрирована"
	}
	return "ok", "последняя проверка успешна"
}

// endpointReadiness переводит состояние endpoint'а в статус readiness.
func endpointReadiness(es dephealth.EndpointStatus) (string, string) {
	switch {
	case es.Healthy == nil:
		return "degraded", "проверка ещё не выполнена"
	case *es.Healthy:
		return "ok", fmt.Sprintf("задержка %.1f мс", es.LatencyMillis())
	case es.Detail != "":
		return "fail", fmt.Sprintf("%s: %s", es.Status, es.Detail)
	default:
		return "fail", string(es.Status)
	}
}

// adminAPIChecker — dephealth.HealthChecker поверх RealmPinger.
// Endpoint не используется: адрес Admin API уже известен клиенту.
// Сетевые ошибки и таймауты классифицирует SDK.
type adminAPIChecker struct {
	admin RealmPinger
}

func (c *adminAPIChecker) Check(ctx context.Context, _ dephealth.Endpoint) error {
	err := c.admin.Ping(ctx)
	if errors.Is(err, keycloak.ErrRealmDisabled) {
		return &dephealth.ClassifiedCheckError{
			Category: dephealth.StatusUnhealthy,
			Detail:   "realm_disabled",
			Cause:    err,
		}
	}
	return err
}

func (c *adminAPIChecker) Type() string {
	return string(dephealth.TypeHTTP)
}

// healthPath возвращает path JWKS URL для HTTP-проверки Keycloak.
func healthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}
