// Пакет apiclient — HTTP-клиент оболочки к API закупок.
// Client реализует session.RoleStore поверх GET /api/v1/role-records/{identity}
// и читает серверное представление сессии (GET /api/v1/session).
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apierrors "github.com/bigkaa/acme-procurement/internal/api/errors"
	"github.com/bigkaa/acme-procurement/internal/domain/rbac"
	"github.com/bigkaa/acme-procurement/internal/routegate"
	"github.com/bigkaa/acme-procurement/internal/session"
)

// TokenSource возвращает access token для заголовка Authorization.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenSourceFunc — адаптер функции к TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// AccessToken вызывает f(ctx).
func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// roleRecordResponse — ответ GET /api/v1/role-records/{identity}.
type roleRecordResponse struct {
	Role      string `json:"role"`
	IsBlocked bool   `json:"is_blocked"`
}

// SessionView — ответ GET /api/v1/session.
type SessionView struct {
	Identity string             `json:"identity"`
	Status   string             `json:"status"`
	Role     string             `json:"role"`
	Routes   routegate.RouteSet `json:"routes"`
}

// apiError — тело ошибки API.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client — HTTP-клиент API закупок.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. baseURL — адрес API без trailing slash.
// httpClient == nil — клиент с таймаутом timeout (по умолчанию 30s).
func New(baseURL string, tokens TokenSource, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "api_client")),
	}
}

// Get возвращает запись роли identity.
// 404 NOT_FOUND — session.ErrRoleNotFound; прочие сбои (сеть, 5xx,
// отказ в авторизации, нераспознанная роль) оборачивают session.ErrStoreUnavailable.
func (c *Client) Get(ctx context.Context, identity string) (*session.RoleRecord, error) {
	resp, err := c.do(ctx, "/api/v1/role-records/"+url.PathEscape(identity))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && errorCode(resp) == apierrors.CodeNotFound {
		return nil, session.ErrRoleNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API вернул статус %d", session.ErrStoreUnavailable, resp.StatusCode)
	}

	var body roleRecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: декодирование записи роли: %w", session.ErrStoreUnavailable, err)
	}

	role, ok := rbac.ParseRole(body.Role)
	if !ok {
		c.logger.Warn("Нераспознанная роль в записи",
			slog.String("identity", identity),
			slog.String("role", body.Role),
		)
		return nil, fmt.Errorf("%w: нераспознанная роль %q", session.ErrStoreUnavailable, body.Role)
	}
	return &session.RoleRecord{Role: role, IsBlocked: body.IsBlocked}, nil
}

// Session возвращает сессию вызывающего так, как её видит сервер.
func (c *Client) Session(ctx context.Context) (*SessionView, error) {
	resp, err := c.do(ctx, "/api/v1/session")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API вернул статус %d (%s)", resp.StatusCode, errorCode(resp))
	}

	var view SessionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("декодирование сессии: %w", err)
	}
	return &view, nil
}

// do выполняет авторизованный GET.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос %s: %w", path, err)
	}
	return resp, nil
}

// errorCode читает код из тела ошибки API; пусто, если тело не в формате API.
func errorCode(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var body apiError
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error.Code
}
