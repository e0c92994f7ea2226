// Пакет config — загрузка и валидация конфигурации Link Guard
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // LG_TIMEZONE работает и в образах без zoneinfo
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища сессий.
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Config содержит все параметры конфигурации Link Guard.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Хранилище сессий ---

	// Бэкенд сессий: postgres (таблица user_sessions) или redis
	SessionBackend string
	// URL Redis (redis:// или rediss://), обязателен для бэкенда redis
	RedisURL string

	// --- Подпись ссылок ---

	// Общий секрет подписи. Пустое значение отключает подпись.
	HashSecret string
	// Сколько предыдущих дней подпись остаётся валидной
	ExtraDays int
	// Часовой пояс для вычисления календарной даты
	Location *time.Location

	// --- Кэш настроек форм ---

	SettingsCacheSize int
	SettingsCacheTTL  time.Duration

	// --- JWT ---

	// URL JWKS endpoint
	JWTJWKSURL string
	// Ожидаемый issuer (пустой — не проверяется)
	JWTIssuer string
	// Путь к CA-сертификату для JWKS (опционально)
	JWKSCACertPath string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Маппинг групп → ролей ---

	RoleAdminGroups    []string
	RoleReadonlyGroups []string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// LG_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("LG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("LG_PORT: %w", err)
	}
	if cfg.Port < 8040 || cfg.Port > 8049 {
		return nil, fmt.Errorf("LG_PORT: значение %d вне допустимого диапазона 8040-8049", cfg.Port)
	}

	// LG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LG_LOG_LEVEL: %w", err)
	}

	// LG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("LG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LG_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("LG_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("LG_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("LG_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("LG_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("LG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("LG_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("LG_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("LG_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("LG_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("LG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("LG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Хранилище сессий ---

	// LG_SESSION_BACKEND — postgres (по умолчанию) или redis
	cfg.SessionBackend = strings.ToLower(getEnvDefault("LG_SESSION_BACKEND", SessionBackendPostgres))
	switch cfg.SessionBackend {
	case SessionBackendPostgres:
	case SessionBackendRedis:
		// LG_REDIS_URL — обязателен только для redis
		if cfg.RedisURL, err = getEnvRequired("LG_REDIS_URL"); err != nil {
			return nil, err
		}
		if u, parseErr := url.Parse(cfg.RedisURL); parseErr != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return nil, fmt.Errorf("LG_REDIS_URL: ожидается схема redis:// или rediss://, получено %q", cfg.RedisURL)
		}
	default:
		return nil, fmt.Errorf("LG_SESSION_BACKEND: недопустимое значение %q, допустимые: postgres, redis", cfg.SessionBackend)
	}

	// --- Подпись ссылок ---

	// LG_HASH_SECRET — необязательный: без него подпись отключена
	cfg.HashSecret = os.Getenv("LG_HASH_SECRET")

	// LG_EXTRA_DAYS — окно валидности в днях (по умолчанию 1)
	cfg.ExtraDays, err = getEnvInt("LG_EXTRA_DAYS", 1)
	if err != nil {
		return nil, fmt.Errorf("LG_EXTRA_DAYS: %w", err)
	}
	if cfg.ExtraDays < 0 || cfg.ExtraDays > 30 {
		return nil, fmt.Errorf("LG_EXTRA_DAYS: значение %d вне допустимого диапазона 0-30", cfg.ExtraDays)
	}

	// LG_TIMEZONE — часовой пояс календарной даты (по умолчанию UTC)
	tz := getEnvDefault("LG_TIMEZONE", "UTC")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("LG_TIMEZONE: неизвестный часовой пояс %q: %w", tz, err)
	}

	// --- Кэш настроек форм ---

	cfg.SettingsCacheSize, err = getEnvInt("LG_SETTINGS_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("LG_SETTINGS_CACHE_SIZE: %w", err)
	}
	if cfg.SettingsCacheSize < 1 {
		return nil, fmt.Errorf("LG_SETTINGS_CACHE_SIZE: значение должно быть > 0")
	}
	cfg.SettingsCacheTTL, err = getEnvDurationFallback("LG_SETTINGS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_SETTINGS_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	if cfg.JWTJWKSURL, err = getEnvRequired("LG_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	cfg.JWTIssuer = getEnvDefault("LG_JWT_ISSUER", "")
	cfg.JWKSCACertPath = getEnvDefault("LG_JWKS_CA_CERT_PATH", "")

	cfg.JWKSClientTimeout, err = getEnvDurationFallback("LG_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDurationFallback("LG_JWKS_REFRESH_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("LG_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_JWT_LEEWAY: %w", err)
	}

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("LG_ROLE_ADMIN_GROUPS", "artsore-admins"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("LG_ROLE_READONLY_GROUPS", "artsore-viewers"))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("LG_DEPHEALTH_GROUP", "link-guard")
	cfg.DephealthCheckInterval, err = getEnvDuration("LG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("LG_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("LG_DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("LG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для golang-migrate и лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SigningEnabled сообщает, задан ли секрет подписи.
func (c *Config) SigningEnabled() bool {
	return c.HashSecret != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

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

// getEnvDurationFallback — как getEnvDuration, но заданное значение обязано быть > 0.
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, fallbackVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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

// parseCSV разбирает строку через запятую, отбрасывая пустые элементы.
func parseCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
