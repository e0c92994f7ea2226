package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
)

// RedisSessionKeyPrefix — префикс ключей сессий. Полный ключ: lg:sessions:{user_id}.
//
// Формат, который ведёт хост-приложение:
//   - sorted set на пользователя;
//   - score — момент истечения сессии (секунды Unix);
//   - member — JSON {"id":"<session id>","login":<секунды Unix>}.
const RedisSessionKeyPrefix = "lg:sessions:"

// redisSessionReader — подмножество команд go-redis, нужное репозиторию.
type redisSessionReader interface {
	ZRangeByScoreWithScores(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.ZSliceCmd
}

// redisSessionMember — JSON-представление member в sorted set.
type redisSessionMember struct {
	ID    string `json:"id"`
	Login int64  `json:"login"`
}

// redisSessionRepo — Redis-реализация SessionRepository (только чтение).
type redisSessionRepo struct {
	client redisSessionReader
	now    func() time.Time
}

// NewRedisSessionRepository создаёт Redis-реализацию SessionRepository.
func NewRedisSessionRepository(client redis.Cmdable) SessionRepository {
	return &redisSessionRepo{client: client, now: time.Now}
}

// RedisSessionKey возвращает ключ sorted set сессий пользователя.
func RedisSessionKey(userID string) string {
	return RedisSessionKeyPrefix + userID
}

// LatestSession возвращает действующую сессию с наибольшим временем входа.
// Читает только members со score > now; некорректные members пропускаются.
func (r *redisSessionRepo) LatestSession(ctx context.Context, userID string) (*model.Session, error) {
	now := r.now()
	members, err := r.client.ZRangeByScoreWithScores(ctx, RedisSessionKey(userID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессий пользователя %s из Redis: %w", userID, err)
	}

	var latest *model.Session
	for _, z := range members {
		raw, ok := z.Member.(string)
		if !ok {
			continue
		}
		var m redisSessionMember
		if err := json.Unmarshal([]byte(raw), &m); err != nil || m.Login <= 0 {
			continue
		}
		if latest != nil && m.Login <= latest.LoginAt.Unix() {
			continue
		}
		latest = &model.Session{
			ID:        m.ID,
			UserID:    userID,
			LoginAt:   time.Unix(m.Login, 0).UTC(),
			ExpiresAt: scoreToTime(z.Score),
		}
	}

	if latest == nil {
		return nil, ErrNoActiveSession
	}
	return latest, nil
}

// EncodeRedisSessionMember формирует member sorted set для сессии.
// Используется хост-приложением и тестами при наполнении Redis.
func EncodeRedisSessionMember(s *model.Session) (redis.Z, error) {
	data, err := json.Marshal(redisSessionMember{ID: s.ID, Login: s.LoginAt.Unix()})
	if err != nil {
		return redis.Z{}, fmt.Errorf("ошибка кодирования сессии %s: %w", s.ID, err)
	}
	return redis.Z{Score: float64(s.ExpiresAt.Unix()), Member: string(data)}, nil
}

func scoreToTime(score float64) time.Time {
	if math.IsInf(score, 1) {
		return time.Unix(math.MaxInt32, 0).UTC()
	}
	return time.Unix(int64(score), 0).UTC()
}
