package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
)

// sessionRepo — чтение сессий из таблицы user_sessions (owned by хост-приложением).
type sessionRepo struct {
	db DBTX
}

// NewSessionRepository создаёт PostgreSQL-реализацию SessionRepository.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepo{db: db}
}

// LatestSession возвращает действующую сессию с наибольшим login_at.
// Истёкшие сессии (expires_at <= NOW()) не учитываются.
func (r *sessionRepo) LatestSession(ctx context.Context, userID string) (*model.Session, error) {
	query := `
		SELECT id::text, user_id, login_at, expires_at
		FROM user_sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY login_at DESC
		LIMIT 1`

	s := &model.Session{}
	err := r.db.QueryRow(ctx, query, userID).Scan(&s.ID, &s.UserID, &s.LoginAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("ошибка получения сессии пользователя %s: %w", userID, err)
	}
	return s, nil
}
