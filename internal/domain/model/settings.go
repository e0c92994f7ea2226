// Пакет model — доменные модели Link Guard.
// FormSettings — маппинг таблицы form_protection_settings (owned by Link Guard).
// Session — запись сессии пользователя (owned by хост-приложением, только чтение).
package model

import "time"

// FormSettings — настройки защиты файлов для одной формы.
// Отсутствие записи в БД эквивалентно настройкам по умолчанию (всё выключено).
type FormSettings struct {
	// FormID — идентификатор формы в хост-приложении (> 0)
	FormID int64
	// RequireLoginForDownloads — скачивание только для вошедших пользователей,
	// ссылки получают подпись opal-hash
	RequireLoginForDownloads bool
	// BlockDirectAccessToUploads — запрет прямого доступа к папке загрузок формы
	BlockDirectAccessToUploads bool
	// UpdatedAt — время последнего изменения (zero для настроек по умолчанию)
	UpdatedAt time.Time
	// UpdatedBy — кто изменил настройки (sub или username из JWT)
	UpdatedBy string
}

// DefaultFormSettings возвращает настройки формы без записи в БД.
func DefaultFormSettings(formID int64) *FormSettings {
	return &FormSettings{FormID: formID}
}

// Protected сообщает, требуется ли подпись ссылок для формы.
func (s *FormSettings) Protected() bool {
	return s != nil && s.RequireLoginForDownloads
}
