// Пакет config — загрузка и валидация конфигурации из переменных окружения.
//
// Два набора параметров:
//   - Config (префикс PA_) — API закупок (procurement-api);
//   - ShellConfig (префикс PS_) — оболочка приложения (procurement-shell).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации API закупок.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Проверка запросов по OpenAPI-спецификации
	OpenAPIValidation bool

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле
	DBMaxConns int
	// Сколько ждать PostgreSQL при старте
	DBConnectTimeout time.Duration

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.acme.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID сервисного аккаунта для Keycloak Admin API
	KeycloakClientID string
	// Client Secret сервисного аккаунта
	KeycloakClientSecret string
	// Client ID мобильного приложения (для писем сброса пароля)
	KeycloakAppClientID string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Путь к CA-сертификату Keycloak (пусто — системный пул)
	KeycloakCACert string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration

	// --- Кэш записей ролей ---

	// Время жизни записи роли в кэше
	RoleCacheTTL time.Duration
	// Максимальное число записей в кэше
	RoleCacheSize int

	// --- topologymetrics ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Группа в метриках зависимостей
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию API из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("PA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PA_LOG_LEVEL: %w", err)
	}

	// PA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat, err = parseLogFormat(getEnvDefault("PA_LOG_FORMAT", "json"))
	if err != nil {
		return nil, fmt.Errorf("PA_LOG_FORMAT: %w", err)
	}

	// PA_OPENAPI_VALIDATION — проверка запросов по OpenAPI (по умолчанию true)
	cfg.OpenAPIValidation, err = getEnvBool("PA_OPENAPI_VALIDATION", true)
	if err != nil {
		return nil, fmt.Errorf("PA_OPENAPI_VALIDATION: %w", err)
	}

	// --- PostgreSQL ---

	// PA_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("PA_DB_HOST")
	if err != nil {
		return nil, err
	}

	// PA_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("PA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PA_DB_PORT: %w", err)
	}

	// PA_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("PA_DB_NAME")
	if err != nil {
		return nil, err
	}

	// PA_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("PA_DB_USER")
	if err != nil {
		return nil, err
	}

	// PA_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("PA_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// PA_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("PA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// PA_DB_MAX_CONNS — размер пула (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("PA_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("PA_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("PA_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", cfg.DBMaxConns)
	}

	// PA_DB_CONNECT_TIMEOUT — ожидание PostgreSQL при старте (по умолчанию 30s)
	cfg.DBConnectTimeout, err = getEnvDuration("PA_DB_CONNECT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Keycloak ---

	// PA_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("PA_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// PA_KEYCLOAK_REALM — realm (по умолчанию acme)
	cfg.KeycloakRealm = getEnvDefault("PA_KEYCLOAK_REALM", "acme")

	// PA_KEYCLOAK_CLIENT_ID — обязательный
	cfg.KeycloakClientID, err = getEnvRequired("PA_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// PA_KEYCLOAK_CLIENT_SECRET — обязательный
	cfg.KeycloakClientSecret, err = getEnvRequired("PA_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// PA_KEYCLOAK_APP_CLIENT_ID — client мобильного приложения (по умолчанию procurement-app)
	cfg.KeycloakAppClientID = getEnvDefault("PA_KEYCLOAK_APP_CLIENT_ID", "procurement-app")

	// --- JWT ---

	// PA_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("PA_JWT_ISSUER", realmIssuer(cfg.KeycloakURL, cfg.KeycloakRealm))

	// PA_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("PA_JWT_JWKS_URL", realmJWKSURL(cfg.KeycloakURL, cfg.KeycloakRealm))

	// PA_KEYCLOAK_CA_CERT — опциональный CA-сертификат
	cfg.KeycloakCACert = os.Getenv("PA_KEYCLOAK_CA_CERT")
	if cfg.KeycloakCACert != "" {
		if _, statErr := os.Stat(cfg.KeycloakCACert); statErr != nil {
			return nil, fmt.Errorf("PA_KEYCLOAK_CA_CERT: файл недоступен: %w", statErr)
		}
	}

	// PA_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("PA_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// PA_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("PA_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PA_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// PA_JWT_LEEWAY — допустимое отклонение часов (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("PA_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_JWT_LEEWAY: %w", err)
	}

	// --- Кэш записей ролей ---

	// PA_ROLE_CACHE_TTL — время жизни записи роли в кэше (по умолчанию 30s)
	cfg.RoleCacheTTL, err = getEnvDuration("PA_ROLE_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_ROLE_CACHE_TTL: %w", err)
	}
	if cfg.RoleCacheTTL <= 0 {
		return nil, fmt.Errorf("PA_ROLE_CACHE_TTL: значение должно быть положительным")
	}

	// PA_ROLE_CACHE_SIZE — размер кэша (по умолчанию 1024)
	cfg.RoleCacheSize, err = getEnvInt("PA_ROLE_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("PA_ROLE_CACHE_SIZE: %w", err)
	}
	if cfg.RoleCacheSize < 1 || cfg.RoleCacheSize > 1_000_000 {
		return nil, fmt.Errorf("PA_ROLE_CACHE_SIZE: значение %d вне допустимого диапазона 1-1000000", cfg.RoleCacheSize)
	}

	// --- topologymetrics ---

	// PA_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// PA_DEPHEALTH_GROUP — группа в метриках (по умолчанию acme-procurement)
	cfg.DephealthGroup = getEnvDefault("PA_DEPHEALTH_GROUP", "acme-procurement")

	// --- Graceful shutdown ---

	// PA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// ShellConfig содержит параметры оболочки приложения.
type ShellConfig struct {
	// Уровень логирования
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- API закупок ---

	// Базовый URL API (например, https://procurement.acme.lan)
	APIURL string
	// Таймаут одного запроса к API
	APITimeout time.Duration

	// --- Keycloak ---

	// URL Keycloak
	KeycloakURL string
	// Realm
	KeycloakRealm string
	// Client ID приложения (public client с Direct Access Grants)
	KeycloakClientID string
	// Client Secret (пусто для public client)
	KeycloakClientSecret string
	// URL JWKS endpoint (авто-вычисляется)
	JWTJWKSURL string
	// Issuer JWT (авто-вычисляется)
	JWTIssuer string

	// --- Вход ---

	// Email для входа при старте (опционально)
	Email string
	// Пароль для входа при старте (опционально)
	Password string //nolint:gosec // G117: значение из окружения

	// --- Резолвер сессии ---

	// Число повторов запроса роли при сбое (0 — без повторов)
	RoleFetchRetries int
	// Пауза между повторами
	RoleFetchBackoff time.Duration
	// Таймаут одного запроса роли (0 — без ограничения)
	RoleFetchTimeout time.Duration
	// Политика токена заблокированного пользователя: keep, revoke
	BlockedPolicy string

	// --- Мониторинг сети ---

	// URL для проверки доступности (по умолчанию APIURL + /health/live)
	ConnectivityURL string
	// Интервал опроса
	ConnectivityInterval time.Duration
	// Таймаут одной проверки
	ConnectivityTimeout time.Duration
}

// LoadShell загружает конфигурацию оболочки (префикс PS_).
func LoadShell() (*ShellConfig, error) {
	cfg := &ShellConfig{}
	var err error

	// PS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PS_LOG_LEVEL: %w", err)
	}

	// PS_LOG_FORMAT — формат логов (по умолчанию text)
	cfg.LogFormat, err = parseLogFormat(getEnvDefault("PS_LOG_FORMAT", "text"))
	if err != nil {
		return nil, fmt.Errorf("PS_LOG_FORMAT: %w", err)
	}

	// --- API ---

	// PS_API_URL — обязательный
	cfg.APIURL, err = getEnvRequired("PS_API_URL")
	if err != nil {
		return nil, err
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	// PS_API_TIMEOUT — таймаут запроса к API (по умолчанию 10s)
	cfg.APITimeout, err = getEnvDuration("PS_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_API_TIMEOUT: %w", err)
	}

	// --- Keycloak ---

	// PS_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("PS_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// PS_KEYCLOAK_REALM — realm (по умолчанию acme)
	cfg.KeycloakRealm = getEnvDefault("PS_KEYCLOAK_REALM", "acme")

	// PS_KEYCLOAK_CLIENT_ID — client приложения (по умолчанию procurement-app)
	cfg.KeycloakClientID = getEnvDefault("PS_KEYCLOAK_CLIENT_ID", "procurement-app")

	// PS_KEYCLOAK_CLIENT_SECRET — опционально (confidential client)
	cfg.KeycloakClientSecret = getEnvDefault("PS_KEYCLOAK_CLIENT_SECRET", "")

	cfg.JWTIssuer = getEnvDefault("PS_JWT_ISSUER", realmIssuer(cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("PS_JWT_JWKS_URL", realmJWKSURL(cfg.KeycloakURL, cfg.KeycloakRealm))

	// --- Вход ---

	// PS_EMAIL и PS_PASSWORD задаются вместе
	cfg.Email = getEnvDefault("PS_EMAIL", "")
	cfg.Password = getEnvDefault("PS_PASSWORD", "")
	if (cfg.Email == "") != (cfg.Password == "") {
		return nil, fmt.Errorf("PS_EMAIL и PS_PASSWORD задаются вместе")
	}

	// --- Резолвер сессии ---

	// PS_ROLE_FETCH_RETRIES — повторы запроса роли (по умолчанию 0)
	cfg.RoleFetchRetries, err = getEnvInt("PS_ROLE_FETCH_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("PS_ROLE_FETCH_RETRIES: %w", err)
	}
	if cfg.RoleFetchRetries < 0 || cfg.RoleFetchRetries > 10 {
		return nil, fmt.Errorf("PS_ROLE_FETCH_RETRIES: значение %d вне допустимого диапазона 0-10", cfg.RoleFetchRetries)
	}

	// PS_ROLE_FETCH_BACKOFF — пауза между повторами (по умолчанию 1s)
	cfg.RoleFetchBackoff, err = getEnvDuration("PS_ROLE_FETCH_BACKOFF", time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_ROLE_FETCH_BACKOFF: %w", err)
	}

	// PS_ROLE_FETCH_TIMEOUT — таймаут запроса роли (по умолчанию 0, без ограничения)
	cfg.RoleFetchTimeout, err = getEnvDuration("PS_ROLE_FETCH_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("PS_ROLE_FETCH_TIMEOUT: %w", err)
	}

	// PS_BLOCKED_POLICY — keep или revoke (по умолчанию keep)
	cfg.BlockedPolicy = getEnvDefault("PS_BLOCKED_POLICY", "keep")
	if cfg.BlockedPolicy != "keep" && cfg.BlockedPolicy != "revoke" {
		return nil, fmt.Errorf("PS_BLOCKED_POLICY: недопустимое значение %q, допустимые: keep, revoke", cfg.BlockedPolicy)
	}

	// --- Мониторинг сети ---

	cfg.ConnectivityURL = getEnvDefault("PS_CONNECTIVITY_URL", cfg.APIURL+"/health/live")

	// PS_CONNECTIVITY_INTERVAL — интервал опроса (по умолчанию 5s)
	cfg.ConnectivityInterval, err = getEnvDuration("PS_CONNECTIVITY_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_CONNECTIVITY_INTERVAL: %w", err)
	}
	if cfg.ConnectivityInterval <= 0 {
		return nil, fmt.Errorf("PS_CONNECTIVITY_INTERVAL: значение должно быть положительным")
	}

	// PS_CONNECTIVITY_TIMEOUT — таймаут проверки (по умолчанию 3s)
	cfg.ConnectivityTimeout, err = getEnvDuration("PS_CONNECTIVITY_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_CONNECTIVITY_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер.
func SetupLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func realmIssuer(keycloakURL, realm string) string {
	return fmt.Sprintf("%s/realms/%s", keycloakURL, realm)
}

func realmJWKSURL(keycloakURL, realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", keycloakURL, realm)
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

func parseLogFormat(format string) (string, error) {
	if format != "json" && format != "text" {
		return "", fmt.Errorf("недопустимое значение %q, допустимые: json, text", format)
	}
	return format, nil
}
