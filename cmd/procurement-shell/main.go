// Точка входа оболочки приложения закупок ACME.
// Связывает провайдер идентификации Keycloak, резолвер сессии, Route Gate
// и монитор сети; при каждом изменении пишет в лог доступный набор экранов
// и пометку offline. SIGHUP — повторное разрешение сессии,
// SIGINT/SIGTERM — остановка.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigkaa/acme-procurement/internal/apiclient"
	"github.com/bigkaa/acme-procurement/internal/config"
	"github.com/bigkaa/acme-procurement/internal/connectivity"
	"github.com/bigkaa/acme-procurement/internal/identity"
	"github.com/bigkaa/acme-procurement/internal/session"
	"github.com/bigkaa/acme-procurement/internal/shell"
)

// jwksRefreshInterval — интервал обновления ключей realm'а.
const jwksRefreshInterval = 15 * time.Minute

func main() {
	// 1. Конфигурация
	cfg, err := config.LoadShell()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Оболочка закупок запускается",
		slog.String("version", config.Version),
		slog.String("api_url", cfg.APIURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Провайдер идентификации (Keycloak)
	httpClient := &http.Client{Timeout: cfg.APITimeout}
	kf, err := identity.NewKeyfunc(cfg.JWTJWKSURL, httpClient, jwksRefreshInterval, logger)
	if err != nil {
		logger.Error("Ошибка создания JWKS keyfunc", slog.String("error", err.Error()))
		os.Exit(1)
	}
	provider := identity.New(identity.Config{
		KeycloakURL:  cfg.KeycloakURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakClientID,
		ClientSecret: cfg.KeycloakClientSecret,
		Issuer:       cfg.JWTIssuer,
	}, kf, httpClient, logger)

	// 4. Хранилище записей ролей — API закупок
	api := apiclient.New(cfg.APIURL, provider, nil, cfg.APITimeout, logger)

	// 5. Резолвер сессии
	policy, err := session.ParseBlockedPolicy(cfg.BlockedPolicy)
	if err != nil {
		logger.Error("Ошибка конфигурации резолвера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	resolver := session.NewResolver(provider, api, logger,
		session.WithRetry(cfg.RoleFetchRetries, cfg.RoleFetchBackoff),
		session.WithFetchTimeout(cfg.RoleFetchTimeout),
		session.WithBlockedPolicy(policy),
		session.WithErrorHandler(func(err error) {
			logger.Warn("Сессия не разрешена, повторите через SIGHUP",
				slog.String("error", err.Error()),
			)
		}),
	)

	// 6. Монитор сети
	monitor := connectivity.NewMonitor(
		connectivity.NewHTTPProbe(cfg.ConnectivityURL, cfg.ConnectivityTimeout),
		cfg.ConnectivityInterval,
		logger,
	)

	// 7. Оболочка
	app := shell.New(resolver, monitor, logger)
	app.Subscribe(func(v shell.View) {
		if v.Session.IsActive() && !v.Offline {
			compareWithServer(ctx, api, v, cfg.APITimeout, logger)
		}
	})

	app.Start()
	monitor.Start(ctx)
	if err := resolver.Start(ctx); err != nil {
		logger.Error("Ошибка запуска резолвера сессии", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Вход по учётным данным из окружения
	if cfg.Email != "" {
		_, err := resolver.SignIn(ctx, session.Credential{Email: cfg.Email, Password: cfg.Password})
		if errors.Is(err, session.ErrInvalidCredential) {
			logger.Warn("Неверный email или пароль", slog.String("email", cfg.Email))
		} else if err != nil {
			logger.Error("Ошибка входа", slog.String("error", err.Error()))
		}
	}

	// 9. Сигналы: SIGHUP — повторное разрешение сессии
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Получен сигнал остановки")
			app.Stop()
			resolver.Close()
			monitor.Stop()
			logger.Info("Оболочка закупок остановлена")
			return
		case <-hup:
			logger.Info("Повторное разрешение сессии по SIGHUP")
			if err := resolver.Refresh(ctx); err != nil {
				logger.Warn("Повторное разрешение не удалось", slog.String("error", err.Error()))
			}
		}
	}
}

// compareWithServer сверяет набор экранов с тем, что вычисляет API.
// Расхождение означает, что запись роли изменилась после разрешения сессии.
func compareWithServer(ctx context.Context, api *apiclient.Client, v shell.View, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	remote, err := api.Session(ctx)
	if err != nil {
		logger.Debug("Сессия на сервере недоступна", slog.String("error", err.Error()))
		return
	}
	if !remote.Routes.Equal(v.Routes) {
		logger.Warn("Набор экранов расходится с сервером, выполните SIGHUP",
			slog.String("local", v.Session.String()),
			slog.String("server_status", remote.Status),
			slog.String("server_role", remote.Role),
		)
	}
}
