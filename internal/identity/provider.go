// Пакет identity — провайдер идентификации оболочки поверх Keycloak.
//
// Provider реализует session.AuthProvider и session.SessionRevoker:
// вход по email и паролю (Resource Owner Password Credentials grant),
// проверку access token по JWKS realm'а, обновление токена через
// refresh token, выход и аннулирование токена.
package identity

import (
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

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/acme-procurement/internal/session"
)

// Ошибки провайдера.
var (
	// ErrNoSession — пользователь не вошёл.
	ErrNoSession = errors.New("нет активной сессии провайдера")
	// ErrUnavailable — Keycloak недоступен или вернул неожиданный ответ.
	ErrUnavailable = errors.New("провайдер идентификации недоступен")
)

// refreshMargin — токен обновляется заранее, за это время до истечения.
const refreshMargin = 30 * time.Second

// Config — параметры подключения к realm'у Keycloak.
type Config struct {
	// KeycloakURL — базовый URL Keycloak (без trailing slash).
	KeycloakURL string
	// Realm — имя realm.
	Realm string
	// ClientID — client приложения с включёнными Direct Access Grants.
	ClientID string
	// ClientSecret — пусто для public client.
	ClientSecret string
	// Issuer — ожидаемый iss токена (пусто — не проверяется).
	Issuer string
	// Leeway — допуск расхождения часов при проверке exp.
	Leeway time.Duration
}

// tokenResponse — ответ token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	ExpiresIn    int    `json:"expires_in"`
}

// tokenError — ошибка token endpoint.
type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// tokens — состояние вошедшего пользователя.
type tokens struct {
	identity     string
	accessToken  string
	refreshToken string
	expiry       time.Time
	// revoked — токены аннулированы, identity сохранён до SignOut.
	revoked bool
}

type subscriber struct {
	id uint64
	fn func(identity string)
}

// Provider — провайдер идентификации на Keycloak.
type Provider struct {
	tokenURL   string
	logoutURL  string
	revokeURL  string
	cfg        Config
	jwks       keyfunc.Keyfunc
	httpClient *http.Client
	logger     *slog.Logger

	// emitMu упорядочивает изменение состояния и доставку подписчикам.
	emitMu sync.Mutex

	mu     sync.Mutex
	state  *tokens
	subs   []subscriber
	nextID uint64
}

// New создаёт провайдер. jwks проверяет подпись access token.
// httpClient == nil — клиент с таймаутом 30s.
func New(cfg Config, jwks keyfunc.Keyfunc, httpClient *http.Client, logger *slog.Logger) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := fmt.Sprintf("%s/realms/%s/protocol/openid-connect",
		strings.TrimRight(cfg.KeycloakURL, "/"), cfg.Realm)

	return &Provider{
		tokenURL:   base + "/token",
		logoutURL:  base + "/logout",
		revokeURL:  base + "/revoke",
		cfg:        cfg,
		jwks:       jwks,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "identity_provider")),
	}
}

// NewKeyfunc создаёт keyfunc с фоновым обновлением JWKS.
// Первый запрос ключей не обязан быть успешным: Keycloak может подняться позже.
func NewKeyfunc(jwksURL string, httpClient *http.Client, refresh time.Duration, logger *slog.Logger) (keyfunc.Keyfunc, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refresh,
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

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return k, nil
}

// Subscribe подписывает fn на смену пользователя. Текущий identity
// доставляется синхронно до возврата. fn не должен вызывать методы Provider.
func (p *Provider) Subscribe(fn func(identity string)) (unsubscribe func()) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	current := p.identityLocked()
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, s := range p.subs {
				if s.id == id {
					p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Identity возвращает identity вошедшего пользователя или пустую строку.
func (p *Provider) Identity() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identityLocked()
}

func (p *Provider) identityLocked() string {
	if p.state == nil {
		return ""
	}
	return p.state.identity
}

// SignIn получает токены по email и паролю. Каждый успешный вход
// уведомляет подписчиков.
func (p *Provider) SignIn(ctx context.Context, cred session.Credential) (string, error) {
	data := url.Values{
		"grant_type": {"password"},
		"username":   {cred.Email},
		"password":   {cred.Password},
		"scope":      {"openid"},
	}
	resp, err := p.requestToken(ctx, data)
	if err != nil {
		return "", err
	}

	t, err := p.tokensFrom(ctx, resp)
	if err != nil {
		return "", err
	}

	p.setState(t, true)
	p.logger.Info("Пользователь вошёл", slog.String("identity", t.identity))
	return t.identity, nil
}

// SignOut завершает сессию в Keycloak и сбрасывает локальные токены.
// Ошибка удалённого logout только логируется: локально сессия закрыта.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	t := p.state
	p.mu.Unlock()
	if t == nil {
		return nil
	}

	if !t.revoked {
		if err := p.postForm(ctx, p.logoutURL, url.Values{"refresh_token": {t.refreshToken}}); err != nil {
			p.logger.Warn("Ошибка logout в Keycloak",
				slog.String("identity", t.identity),
				slog.String("error", err.Error()),
			)
		}
	}

	p.setState(nil, false)
	p.logger.Info("Пользователь вышел", slog.String("identity", t.identity))
	return nil
}

// RevokeSession аннулирует refresh token и удаляет локальные токены без
// уведомления подписчиков: identity сохраняется до SignOut, чтобы сессия
// осталась на экране блокировки. Токены удаляются и при ошибке аннулирования.
func (p *Provider) RevokeSession(ctx context.Context) error {
	p.mu.Lock()
	t := p.state
	p.mu.Unlock()
	if t == nil || t.revoked {
		return ErrNoSession
	}

	err := p.postForm(ctx, p.revokeURL, url.Values{
		"token":           {t.refreshToken},
		"token_type_hint": {"refresh_token"},
	})

	p.mu.Lock()
	if p.state == t {
		p.state = &tokens{identity: t.identity, revoked: true}
	}
	p.mu.Unlock()

	p.logger.Info("Токены пользователя аннулированы", slog.String("identity", t.identity))
	if err != nil {
		return fmt.Errorf("аннулирование токена: %w", err)
	}
	return nil
}

// AccessToken возвращает действующий access token, при необходимости
// обновляя его. Отказ в обновлении закрывает локальную сессию.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	t := p.state
	p.mu.Unlock()
	if t == nil || t.revoked {
		return "", ErrNoSession
	}
	if time.Now().Add(refreshMargin).Before(t.expiry) {
		return t.accessToken, nil
	}

	resp, err := p.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.refreshToken},
	})
	if errors.Is(err, session.ErrInvalidCredential) {
		p.logger.Warn("Refresh token отклонён, сессия закрыта",
			slog.String("identity", t.identity),
		)
		p.clearIf(t)
		return "", ErrNoSession
	}
	if err != nil {
		return "", err
	}

	next, err := p.tokensFrom(ctx, resp)
	if err != nil {
		return "", err
	}
	if next.identity != t.identity {
		p.clearIf(t)
		return "", fmt.Errorf("%w: identity изменился при обновлении токена", ErrUnavailable)
	}

	p.mu.Lock()
	if p.state == t {
		p.state = next
	}
	p.mu.Unlock()

	p.logger.Debug("Access token обновлён",
		slog.String("identity", next.identity),
		slog.Time("expires_at", next.expiry),
	)
	return next.accessToken, nil
}

// setState заменяет состояние и уведомляет подписчиков, если сменился
// identity или force.
func (p *Provider) setState(t *tokens, force bool) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	prev := p.identityLocked()
	p.state = t
	next := p.identityLocked()
	subs := make([]subscriber, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	if !force && prev == next {
		return
	}
	for _, s := range subs {
		s.fn(next)
	}
}

// clearIf сбрасывает сессию, если она не сменилась с момента чтения t.
func (p *Provider) clearIf(t *tokens) {
	p.mu.Lock()
	same := p.state == t
	p.mu.Unlock()
	if same {
		p.setState(nil, false)
	}
}

// tokensFrom проверяет access token и извлекает identity (sub).
func (p *Provider) tokensFrom(ctx context.Context, resp *tokenResponse) (*tokens, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.cfg.Leeway),
	}
	if p.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(resp.AccessToken, claims, p.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("токен недействителен")
		}
		return nil, fmt.Errorf("%w: проверка access token: %w", ErrUnavailable, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: в access token нет sub", ErrUnavailable)
	}

	expiry := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(expiry) {
		expiry = claims.ExpiresAt.Time
	}

	return &tokens{
		identity:     claims.Subject,
		accessToken:  resp.AccessToken,
		refreshToken: resp.RefreshToken,
		expiry:       expiry,
	}, nil
}

// requestToken выполняет POST к token endpoint.
// invalid_grant (неверный пароль, отключённый пользователь, просроченный
// refresh token) — session.ErrInvalidCredential.
func (p *Provider) requestToken(ctx context.Context, data url.Values) (*tokenResponse, error) {
	resp, err := p.doForm(ctx, p.tokenURL, data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr tokenError
		if jsonErr := json.Unmarshal(body, &tokenErr); jsonErr == nil && tokenErr.Error != "" {
			if tokenErr.Error == "invalid_grant" {
				return nil, session.ErrInvalidCredential
			}
			return nil, fmt.Errorf("%w: token endpoint: %s: %s", ErrUnavailable, tokenErr.Error, tokenErr.Description)
		}
		return nil, fmt.Errorf("%w: token endpoint вернул статус %d", ErrUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: разбор ответа token endpoint: %w", ErrUnavailable, err)
	}
	return &tr, nil
}

// postForm выполняет POST без тела ответа и проверяет статус 2xx.
func (p *Provider) postForm(ctx context.Context, endpoint string, data url.Values) error {
	resp, err := p.doForm(ctx, endpoint, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s вернул статус %d", ErrUnavailable, endpoint, resp.StatusCode)
	}
	return nil
}

func (p *Provider) doForm(ctx context.Context, endpoint string, data url.Values) (*http.Response, error) {
	data.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		data.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}
