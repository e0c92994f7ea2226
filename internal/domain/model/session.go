package model

import "time"

// Session — активная сессия входа пользователя.
type Session struct {
	// ID — идентификатор сессии
	ID string
	// UserID — идентификатор пользователя в хост-приложении
	UserID string
	// LoginAt — момент входа; участвует в подписи с точностью до секунды
	LoginAt time.Time
	// ExpiresAt — момент истечения сессии
	ExpiresAt time.Time
}

// Active сообщает, действует ли сессия в момент now.
func (s *Session) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// LoginTimestamp — время входа в секундах Unix, как оно входит в подпись.
func (s *Session) LoginTimestamp() int64 {
	return s.LoginAt.Unix()
}
