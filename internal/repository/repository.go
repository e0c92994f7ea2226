// Пакет repository — слой доступа к данным Link Guard.
// form_protection_settings принадлежит Link Guard (чтение и запись).
// Сессии пользователей принадлежат хост-приложению: PostgreSQL (user_sessions)
// или Redis (sorted set на пользователя), Link Guard их только читает.
// Все SQL-запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrNoActiveSession — у пользователя нет действующих сессий.
	ErrNoActiveSession = errors.New("нет активных сессий")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionRepository — чтение последней активной сессии пользователя.
// Реализации: PostgreSQL (NewSessionRepository) и Redis (NewRedisSessionRepository).
type SessionRepository interface {
	// LatestSession возвращает действующую сессию с наибольшим временем входа.
	// Если действующих сессий нет — ErrNoActiveSession.
	LatestSession(ctx context.Context, userID string) (*model.Session, error)
}
