// auth.go — JWT middleware для аутентификации и авторизации API закупок.
// Проверяет подпись Keycloak JWT через JWKS, по sub читает запись роли
// и строит сессию вызывающего. Доступ к endpoint определяется экраном:
// запрос проходит, только если экран входит в набор маршрутов сессии.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/acme-procurement/internal/api/errors"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/routegate"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyCaller — вызывающий в контексте запроса.
	ContextKeyCaller contextKey = "caller"
	// contextKeyCallerHolder — ссылка для логгера запросов, заполняемая после аутентификации.
	contextKeyCallerHolder contextKey = "caller_holder"
)

// Caller — аутентифицированный вызывающий и его разрешённая сессия.
type Caller struct {
	// Subject — sub из JWT (Keycloak user ID).
	Subject string
	// Email — email из JWT.
	Email string
	// PreferredUsername — preferred_username из JWT.
	PreferredUsername string
	// Session — сессия, построенная по записи роли.
	Session session.Session
}

// IsAdmin проверяет, что вызывающий — активный администратор.
func (c *Caller) IsAdmin() bool {
	return c.Session.IsActive() && c.Session.Role == rbac.RoleAdmin
}

// keycloakClaims — raw claims из Keycloak JWT для парсинга.
type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS Keycloak.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	roles     session.RoleStore
	logger    *slog.Logger
	issuer    string
	jwtLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из Keycloak.
// jwksURL — URL к JWKS endpoint Keycloak.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// issuer — ожидаемый issuer JWT (обычно https://keycloak/realms/acme).
// roles — хранилище записей ролей.
// jwksClientTimeout — таймаут HTTP-клиента JWKS (PA_JWKS_CLIENT_TIMEOUT).
// jwksRefreshInterval — интервал обновления JWKS-ключей (PA_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (PA_JWT_LEEWAY).
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	roles session.RoleStore,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: jwksClientTimeout}
	if caCertPath != "" {
		var err error
		httpClient, err = HTTPClientWithCA(caCertPath, jwksClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:      k,
		roles:     roles,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
	}, nil
}

// HTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("в файле нет PEM-сертификатов")
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, roles session.RoleStore, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:   kf,
		roles:  roles,
		logger: logger.With(slog.String("component", "jwt_auth")),
		issuer: issuer,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), по sub разрешает
// сессию и помещает Caller в контекст. Сбой хранилища ролей — 503.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(w, r)
			if !ok {
				return
			}

			rawClaims := &keycloakClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				if err != nil {
					j.logger.Debug("JWT валидация не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			sess, err := j.resolve(r.Context(), subject)
			if err != nil {
				j.logger.Error("Ошибка чтения записи роли",
					slog.String("subject", subject),
					slog.String("error", err.Error()),
				)
				apierrors.StoreUnavailable(w, "Хранилище ролей недоступно, повторите запрос позже")
				return
			}

			caller := &Caller{
				Subject:           subject,
				Email:             rawClaims.Email,
				PreferredUsername: rawClaims.PreferredUsername,
				Session:           sess,
			}
			if holder, ok := r.Context().Value(contextKeyCallerHolder).(*Caller); ok {
				*holder = *caller
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// resolve строит сессию по записи роли: нет записи — анонимная сессия.
func (j *JWTAuth) resolve(ctx context.Context, subject string) (session.Session, error) {
	rec, err := j.roles.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, session.ErrRoleNotFound) {
			return session.Anonymous(), nil
		}
		return session.Session{}, err
	}
	return session.FromRecord(subject, rec), nil
}

// bearerToken извлекает Bearer token. При ошибке пишет 401 и возвращает false.
func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
		return "", false
	}

	if parts[1] == "" {
		apierrors.Unauthorized(w, "Пустой Bearer token")
		return "", false
	}
	return parts[1], true
}

// --- Авторизация ---

// RequireScreen возвращает middleware, пропускающий запрос, только если
// экран входит в набор маршрутов сессии вызывающего.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireScreen(screen routegate.Screen) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			if caller == nil {
				apierrors.Unauthorized(w, "Отсутствует вызывающий в контексте")
				return
			}

			if routegate.Resolve(caller.Session).Contains(screen) {
				next.ServeHTTP(w, r)
				return
			}

			deny(w, caller.Session, fmt.Sprintf("Экран %s недоступен", screen))
		})
	}
}

// RequireRole возвращает middleware, требующий активную сессию с одной из ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			if caller == nil {
				apierrors.Unauthorized(w, "Отсутствует вызывающий в контексте")
				return
			}

			if caller.Session.IsActive() && slices.Contains(roles, caller.Session.Role) {
				next.ServeHTTP(w, r)
				return
			}

			names := make([]string, len(roles))
			for i, role := range roles {
				names[i] = role.String()
			}
			deny(w, caller.Session, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(names, " или ")))
		})
	}
}

// deny пишет 403 с кодом, объясняющим причину отказа.
func deny(w http.ResponseWriter, s session.Session, message string) {
	switch s.Status {
	case session.StatusBlocked:
		apierrors.AccountBlocked(w, "Учётная запись заблокирована администратором")
	case session.StatusAnonymous, session.StatusUnresolved:
		apierrors.NotProvisioned(w, "Учётная запись не зарегистрирована как сотрудник")
	default:
		apierrors.Forbidden(w, message)
	}
}

// --- Context helpers ---

// CallerFromContext извлекает Caller из контекста запроса.
// Возвращает nil, если вызывающий не найден.
func CallerFromContext(ctx context.Context) *Caller {
	caller, _ := ctx.Value(ContextKeyCaller).(*Caller)
	return caller
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если вызывающий не найден.
func SubjectFromContext(ctx context.Context) string {
	caller := CallerFromContext(ctx)
	if caller == nil {
		return ""
	}
	return caller.Subject
}

// WithCaller помещает Caller в контекст.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, c)
}

func withCallerHolder(ctx context.Context, holder *Caller) context.Context {
	return context.WithValue(ctx, contextKeyCallerHolder, holder)
}

// --- ReadinessChecker для Keycloak ---

// KeycloakReadinessChecker — проверка доступности Keycloak через JWKS.
type KeycloakReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewKeycloakReadinessChecker создаёт checker доступности Keycloak.
func NewKeycloakReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*KeycloakReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = HTTPClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &KeycloakReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint Keycloak.
func (k *KeycloakReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации Keycloak
	if err != nil {
		return statusFail, fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("Keycloak JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("Keycloak JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "Keycloak JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
