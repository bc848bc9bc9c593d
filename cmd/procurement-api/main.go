// Точка входа API закупок ACME.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиент Keycloak Admin API, репозитории, сервисы и handlers,
// запускает topologymetrics и HTTP-сервер с JWT middleware, проверкой
// запросов по OpenAPI и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/acme-procurement/internal/api/handlers"
	"github.com/bigkaa/acme-procurement/internal/api/middleware"
	"github.com/bigkaa/acme-procurement/internal/api/openapi"
	"github.com/bigkaa/acme-procurement/internal/config"
	"github.com/bigkaa/acme-procurement/internal/database"
	"github.com/bigkaa/acme-procurement/internal/keycloak"
	"github.com/bigkaa/acme-procurement/internal/repository"
	"github.com/bigkaa/acme-procurement/internal/rolestore"
	"github.com/bigkaa/acme-procurement/internal/server"
	"github.com/bigkaa/acme-procurement/internal/service"
)

func main() {
	// 1. Конфигурация из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("API закупок запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("PA_DEPHEALTH_GROUP") == "" {
		logger.Warn("PA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. PostgreSQL (pgxpool), ожидание готовности
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4. Миграции БД
	if _, err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		pool.Close()
		os.Exit(1)
	}

	// Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA для Keycloak (nil — системный пул)
	var httpClientCA *http.Client
	if cfg.KeycloakCACert != "" {
		httpClientCA, err = middleware.HTTPClientWithCA(cfg.KeycloakCACert, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата",
				slog.String("path", cfg.KeycloakCACert),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// 6. Keycloak Admin API
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClientCA,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 7. Репозитории
	collaboratorRepo := repository.NewCollaboratorRepository(pool)
	supplierRepo := repository.NewSupplierRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	requisitionRepo := repository.NewRequisitionRepository(pool)
	quotationRepo := repository.NewQuotationRepository(pool)

	// 8. Хранилище записей ролей с кэшем
	roles := rolestore.New(collaboratorRepo, cfg.RoleCacheSize, cfg.RoleCacheTTL, logger)

	// 9. Сервисы
	collaboratorSvc := service.NewCollaboratorService(
		kcClient, collaboratorRepo, roles,
		cfg.KeycloakAppClientID,
		logger,
	)
	catalogSvc := service.NewCatalogService(supplierRepo, contactRepo, productRepo, logger)
	requisitionSvc := service.NewRequisitionService(
		requisitionRepo, quotationRepo, collaboratorRepo, contactRepo,
		logger,
	)
	homeSvc := service.NewHomeService(productRepo, quotationRepo, requisitionRepo)

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL, JWKS и Admin API Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:        "procurement-api",
		Group:            cfg.DephealthGroup,
		DB:               pgDB,
		PGConnURL:        cfg.DatabaseURL(),
		KeycloakJWKSURL:  cfg.JWTJWKSURL,
		KeycloakAdmin:    kcClient,
		KeycloakAdminURL: kcClient.AdminURL(),
		CheckInterval:    cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// Readiness: PostgreSQL и JWKS проверяются на каждый запрос,
	// Admin API — последним результатом topologymetrics.
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.KeycloakCACert, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(
		handlers.ReadinessCheck{Name: service.DepPostgres, Checker: pgChecker, Critical: true},
		handlers.ReadinessCheck{Name: service.DepKeycloakJWKS, Checker: kcChecker, Critical: true},
	)
	if dephealthSvc != nil {
		healthHandler.WithCheck(handlers.ReadinessCheck{
			Name:    service.DepKeycloakAdmin,
			Checker: dephealthSvc.Readiness(service.DepKeycloakAdmin),
		})
	}

	// 11. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		collaboratorSvc,
		catalogSvc,
		requisitionSvc,
		homeSvc,
		roles,
		logger,
	)

	// 12. JWT middleware: сессия вызывающего по записи роли
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACert,
		cfg.JWTIssuer,
		roles,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 13. Проверка запросов по OpenAPI
	validate := func(next http.Handler) http.Handler { return next }
	if cfg.OpenAPIValidation {
		doc, docErr := openapi.Load(ctx)
		if docErr != nil {
			logger.Error("Ошибка загрузки OpenAPI-спецификации", slog.String("error", docErr.Error()))
			os.Exit(1)
		}
		validator, vErr := middleware.NewRequestValidator(doc, logger)
		if vErr != nil {
			logger.Error("Ошибка создания OpenAPI-валидатора", slog.String("error", vErr.Error()))
			os.Exit(1)
		}
		validate = validator.Middleware()
	} else {
		logger.Warn("Проверка запросов по OpenAPI отключена (PA_OPENAPI_VALIDATION=false)")
	}

	// 14. HTTP-сервер
	router := server.NewRouter(logger, apiHandler, jwtAuth.Middleware(), validate)
	srv := server.New(cfg, logger, router)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("API закупок остановлен")
}
