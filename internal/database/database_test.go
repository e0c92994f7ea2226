package database

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/link-guard/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers
// и возвращает конфиг, указывающий на него.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("linkguard_test"),
		postgres.WithUsername("linkguard"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("LG_DB_HOST", host)
	t.Setenv("LG_DB_PORT", port.Port())
	t.Setenv("LG_DB_NAME", "linkguard_test")
	t.Setenv("LG_DB_USER", "linkguard")
	t.Setenv("LG_DB_PASSWORD", "test-password")
	t.Setenv("LG_DB_SSL_MODE", "disable")
	t.Setenv("LG_JWT_JWKS_URL", "http://localhost:8080/realms/test/protocol/openid-connect/certs")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// TestConnect проверяет подключение к PostgreSQL и readiness checker.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	// Миграции не применялись: PostgreSQL доступен, схемы нет
	status, msg := NewReadinessChecker(pool).CheckReady()
	if status != "degraded" {
		t.Errorf("CheckReady() = %s (%s), ожидается degraded", status, msg)
	}
}

// TestMigrate проверяет применение миграций и их идемпотентность.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение — ErrNoChange, без ошибки
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"form_protection_settings", "user_sessions"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	status, msg := NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() после миграций = %s (%s), ожидается ok", status, msg)
	}
}

// TestConnect_InvalidHost проверяет ошибку при недоступном PostgreSQL.
func TestConnect_InvalidHost(t *testing.T) {
	cfg := &config.Config{
		DBHost: "127.0.0.1", DBPort: 1, DBName: "x", DBUser: "x", DBPassword: "x", DBSSLMode: "disable",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Connect(ctx, cfg, testLogger()); err == nil {
		t.Fatal("ожидалась ошибка подключения")
	}
}

// TestDownMigrations_KeepHostTables — down-миграции не удаляют таблицы хоста.
func TestDownMigrations_KeepHostTables(t *testing.T) {
	body, err := fs.ReadFile(migrationsFS, "migrations/000002_user_sessions.down.sql")
	if err != nil {
		t.Fatalf("чтение down-миграции: %v", err)
	}
	if strings.Contains(strings.ToUpper(string(body)), "DROP") {
		t.Errorf("down-миграция user_sessions не должна удалять таблицу:\n%s", body)
	}
}

// TestMigrateDown_KeepsUserSessions — полный откат сохраняет сессии хоста
// и удаляет только собственные таблицы.
func TestMigrateDown_KeepsUserSessions(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()
	ctx := context.Background()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx,
		`INSERT INTO user_sessions (user_id, login_at, expires_at) VALUES ('42', NOW(), NOW() + INTERVAL '1 day')`)
	if err != nil {
		t.Fatalf("Ошибка вставки сессии: %v", err)
	}

	m, err := newMigrator(cfg)
	if err != nil {
		t.Fatalf("newMigrator(): %v", err)
	}
	defer m.Close()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("Down() вернул ошибку: %v", err)
	}

	var sessions int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM user_sessions`).Scan(&sessions); err != nil {
		t.Fatalf("user_sessions недоступна после отката: %v", err)
	}
	if sessions != 1 {
		t.Errorf("сессий после отката %d, ожидается 1", sessions)
	}

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'form_protection_settings')`,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("Ошибка проверки таблицы: %v", err)
	}
	if exists {
		t.Error("form_protection_settings должна быть удалена откатом")
	}
}
