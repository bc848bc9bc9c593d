// Пакет server — HTTP-сервер Procurement API с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/acme-procurement/internal/api/handlers"
	"github.com/bigkaa/acme-procurement/internal/api/middleware"
	"github.com/bigkaa/acme-procurement/internal/config"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/routegate"
)

// Middleware — стандартная сигнатура HTTP middleware.
type Middleware = func(http.Handler) http.Handler

// Server — HTTP-сервер Procurement API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с готовым router.
func New(cfg *config.Config, logger *slog.Logger, router http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter настраивает маршруты и middleware.
// auth — JWT middleware, помещающий Caller в контекст.
// validate — проверка запросов по OpenAPI-контракту (nil — без проверки).
// Каждый функциональный endpoint закрыт экраном Route Gate:
// запрос проходит, только если экран входит в набор маршрутов сессии.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, auth, validate Middleware) http.Handler {
	if validate == nil {
		validate = func(next http.Handler) http.Handler { return next }
	}

	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	// Health и metrics проверяются Kubernetes напрямую, без JWT.
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Публичные экраны: регистрация и восстановление пароля.
		r.Group(func(r chi.Router) {
			r.Use(validate)
			r.Post("/collaborators", h.RegisterCollaborator)
			r.Post("/password-reset", h.RequestPasswordReset)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Use(validate)

			// Доступно при любом статусе сессии.
			r.Get("/session", h.GetSession)
			r.Get("/role-records/{identity}", h.GetRoleRecord)

			r.With(middleware.RequireScreen(routegate.Home)).Get("/home", h.GetHome)

			// Профиль сотрудника.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.ProfileSettings))
				r.Get("/collaborators/me", h.GetMyProfile)
				r.Put("/collaborators/me", h.UpdateMyProfile)
			})

			// Управление сотрудниками.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(rbac.RoleAdmin))
				r.Get("/collaborators", h.ListCollaborators)
				r.Put("/collaborators/{id}/block", h.BlockCollaborator)
				r.Put("/collaborators/{id}/role", h.SetCollaboratorRole)
			})

			r.Route("/suppliers", func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.Suppliers))
				r.Get("/", h.ListSuppliers)
				r.Post("/", h.CreateSupplier)
				r.Get("/{id}", h.GetSupplier)
				r.Put("/{id}", h.UpdateSupplier)
				r.Delete("/{id}", h.DeleteSupplier)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.Contacts))
				r.Get("/", h.ListContacts)
				r.Post("/", h.CreateContact)
				r.Delete("/{id}", h.DeleteContact)
			})

			r.Route("/products", func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.Products))
				r.Get("/", h.ListProducts)
				r.Post("/", h.CreateProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})

			// Заявки сотрудника.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.NewRequisition))
				r.Post("/requisitions/mine", h.SubmitRequisition)
				r.Put("/requisitions/mine/{id}", h.UpdateMyRequisition)
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.MyRequisitions))
				r.Get("/requisitions/mine", h.ListMyRequisitions)
				r.Delete("/requisitions/mine/{id}", h.DeleteMyRequisition)
			})

			// Рассмотрение заявок администратором.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.RequisitionReview))
				r.Get("/requisitions", h.ListRequisitions)
				r.Delete("/requisitions/{id}", h.DeleteRequisition)
				r.Put("/requisitions/{id}/status", h.SetRequisitionStatus)
			})

			// Котировки.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScreen(routegate.Quotations))
				r.Get("/quotations", h.ListQuotations)
				r.Get("/requisitions/{id}/quotations", h.ListRequisitionQuotations)
				r.Post("/requisitions/{id}/quotations", h.AddQuotation)
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
