// Точка входа Link Guard — сервиса защиты ссылок на файлы форм.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и выбранному хранилищу сессий, собирает сервисный слой, JWT middleware,
// проверку запросов по OpenAPI-контракту и запускает HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/link-guard/internal/api/contract"
	"github.com/bigkaa/goartstore/link-guard/internal/api/handlers"
	"github.com/bigkaa/goartstore/link-guard/internal/api/middleware"
	"github.com/bigkaa/goartstore/link-guard/internal/config"
	"github.com/bigkaa/goartstore/link-guard/internal/database"
	"github.com/bigkaa/goartstore/link-guard/internal/repository"
	"github.com/bigkaa/goartstore/link-guard/internal/server"
	"github.com/bigkaa/goartstore/link-guard/internal/service"
	"github.com/bigkaa/goartstore/link-guard/internal/ui"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Link Guard запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("session_backend", cfg.SessionBackend),
		slog.String("timezone", cfg.Location.String()),
		slog.Int("extra_days", cfg.ExtraDays),
	)
	if !cfg.SigningEnabled() {
		logger.Warn("LG_HASH_SECRET не задан: ссылки не подписываются, защищённые скачивания отклоняются")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	checks := []handlers.NamedChecker{
		{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
	}

	// 5. Хранилище сессий
	var sessions repository.SessionRepository
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, redisErr := database.ConnectRedis(ctx, cfg.RedisURL, logger)
		if redisErr != nil {
			logger.Error("Ошибка подключения к Redis", slog.String("error", redisErr.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
		sessions = repository.NewRedisSessionRepository(rdb)
		checks = append(checks, handlers.NamedChecker{Name: "redis", Checker: database.NewRedisReadinessChecker(rdb)})
	default:
		sessions = repository.NewSessionRepository(pool)
	}

	// 6. Сервисы
	settingsSvc := service.NewFormSettingsService(
		repository.NewFormSettingsRepository(pool),
		cfg.SettingsCacheSize, cfg.SettingsCacheTTL,
		logger,
	)
	protector := service.NewFileProtector(
		settingsSvc, sessions,
		service.ProtectorConfig{
			Secret:    cfg.HashSecret,
			ExtraDays: cfg.ExtraDays,
			Location:  cfg.Location,
		},
		logger,
	)

	// 7. JWT middleware и проверка готовности Keycloak
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		CACertPath:      cfg.JWKSCACertPath,
		Issuer:          cfg.JWTIssuer,
		AdminGroups:     cfg.RoleAdminGroups,
		ReadonlyGroups:  cfg.RoleReadonlyGroups,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	checks = append(checks, handlers.NamedChecker{Name: "keycloak", Checker: kcChecker})

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "link-guard",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       cfg.DephealthIsEntry,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
		defer dephealthSvc.Stop()
	}

	// 9. Проверка запросов по OpenAPI-контракту
	doc, err := contract.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.RequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. HTTP-сервер
	srv := server.New(cfg, logger,
		server.Handlers{
			API:    handlers.NewAPIHandler(protector, settingsSvc, logger),
			Health: handlers.NewHealthHandler(checks...),
			Forms:  ui.NewFormsHandler(settingsSvc, cfg.SigningEnabled(), logger),
		},
		middleware.RequestID(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), server.PrefixHealth, server.PathMetrics),
		validator,
	)

	// 11. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Link Guard остановлен")
}
