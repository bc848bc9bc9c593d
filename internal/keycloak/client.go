// client.go — HTTP-клиент к Keycloak Admin REST API.
// Реализует автоматическое получение service account token через Client Credentials flow,
// кэширование токена (обновление за 30s до expiration).
// Операции: CreateUser, FindUserByEmail, DeleteUser, ExecuteActionsEmail, RealmInfo, Ping.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client — HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID для Client Credentials flow
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Ошибки Admin REST API.
var (
	// ErrUserExists — пользователь с таким username или email уже существует.
	ErrUserExists = errors.New("пользователь Keycloak уже существует")
	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("пользователь Keycloak не найден")
	// ErrRealmDisabled — realm отключён.
	ErrRealmDisabled = errors.New("realm Keycloak отключён")
)

// New создаёт клиент к Keycloak Admin REST API.
// baseURL — базовый URL Keycloak (например, https://keycloak.acme.lan).
// realm — имя realm (например, acme).
// clientID, clientSecret — credentials для Client Credentials flow.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

// adminBaseURL возвращает базовый URL Admin REST API для realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// AdminURL — адрес Admin REST API realm (лейблы topologymetrics).
func (c *Client) AdminURL() string {
	return c.adminBaseURL()
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	// Запрашиваем новый токен через Client Credentials flow
	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Keycloak токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Keycloak API вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Keycloak: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Keycloak API вернул статус %d (ожидался %d): %s",
			resp.StatusCode, expectedStatus, string(body))
	}

	return nil
}

// --- Users API ---

// CreateUser создаёт пользователя с постоянным паролем.
// username совпадает с email. Возвращает Keycloak user ID.
// ErrUserExists — email уже зарегистрирован.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (string, error) {
	createReq := userCreateRequest{
		Username:      u.Email,
		Email:         u.Email,
		FirstName:     u.Name,
		Enabled:       true,
		EmailVerified: false,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: u.Password, Temporary: false},
		},
		Attributes: map[string][]string{
			"managed_by": {"procurement-api"},
		},
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/users", createReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", ErrUserExists
	}
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("CreateUser: Keycloak вернул статус %d: %s", resp.StatusCode, string(body))
	}

	// Keycloak возвращает Location header с ID созданного ресурса
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("CreateUser: отсутствует Location header в ответе")
	}

	// Извлекаем ID из Location: .../users/{id}
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("CreateUser: не удалось извлечь ID из Location: %s", location)
	}

	c.logger.Info("Пользователь Keycloak создан",
		slog.String("user_id", id),
		slog.String("email", u.Email),
	)

	return id, nil
}

// FindUserByEmail возвращает пользователя с точным совпадением email.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*KeycloakUser, error) {
	path := "/users?exact=true&email=" + url.QueryEscape(email)

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("FindUserByEmail: %w", err)
	}

	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}

	return nil, ErrUserNotFound
}

// DeleteUser удаляет пользователя. Отсутствующий пользователь — не ошибка.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil
	}

	return checkResponse(resp, http.StatusNoContent)
}

// ExecuteActionsEmail отправляет пользователю письмо с обязательными действиями
// (например, UPDATE_PASSWORD). clientID — клиент, на который ведёт ссылка письма.
func (c *Client) ExecuteActionsEmail(ctx context.Context, id, clientID string, actions []string) error {
	path := "/users/" + url.PathEscape(id) + "/execute-actions-email"
	if clientID != "" {
		path += "?client_id=" + url.QueryEscape(clientID)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPut, path, actions)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return ErrUserNotFound
	}

	return checkResponse(resp, http.StatusNoContent)
}

// --- Realm API ---

// RealmInfo возвращает информацию о realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}

	var realm RealmRepresentation
	if err := decodeResponse(resp, &realm); err != nil {
		return nil, fmt.Errorf("RealmInfo: %w", err)
	}

	return &realm, nil
}

// Ping проверяет Admin API: сервисный аккаунт получает токен и читает realm.
// Отключённый realm — ErrRealmDisabled.
func (c *Client) Ping(ctx context.Context) error {
	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return err
	}
	if !realm.Enabled {
		return fmt.Errorf("%w: %s", ErrRealmDisabled, realm.Realm)
	}
	return nil
}
