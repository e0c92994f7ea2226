// Пакет linksig — вычисление и проверка вторичной подписи ссылок скачивания.
//
// Подпись связывает файловый токен (параметр hash) с пользователем,
// календарным днём и моментом входа последней сессии:
//
//	opal-hash = hex(sha256(YYYYMMDD + user_id + login_unix + file_token + secret))
//
// Функции пакета чистые: ничего не хранят и не обращаются к сети.
package linksig

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Параметры query string ссылки скачивания.
const (
	// ParamFileToken — файловый токен базового пайплайна скачивания.
	ParamFileToken = "hash"
	// ParamSignature — вторичная подпись Link Guard.
	ParamSignature = "opal-hash"
)

// DateLayout — формат календарной даты в подписи (YYYYMMDD).
const DateLayout = "20060102"

// Ошибки пакета.
var (
	// ErrNoSecret — общий секрет не задан, подпись невозможна.
	ErrNoSecret = errors.New("секрет подписи не задан")
	// ErrMalformedURL — ссылку не удалось разобрать.
	ErrMalformedURL = errors.New("некорректный URL ссылки")
)

// Context — набор данных для вычисления одной подписи.
type Context struct {
	// FileToken — значение параметра hash
	FileToken string
	// UserID — идентификатор пользователя
	UserID string
	// Date — календарная дата в формате DateLayout
	Date string
	// SessionLogin — момент входа последней сессии (секунды Unix)
	SessionLogin int64
	// Secret — общий секрет
	Secret string
}

// Sign вычисляет подпись. Порядок и текстовое представление полей фиксированы:
// любое расхождение между выдачей и проверкой даёт другой дайджест.
func Sign(c Context) (string, error) {
	if c.Secret == "" {
		return "", ErrNoSecret
	}

	h := sha256.New()
	h.Write([]byte(c.Date))
	h.Write([]byte(c.UserID))
	h.Write([]byte(strconv.FormatInt(c.SessionLogin, 10)))
	h.Write([]byte(c.FileToken))
	h.Write([]byte(c.Secret))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DayStamp возвращает дату t в часовом поясе loc в формате DateLayout.
func DayStamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// WindowDays возвращает даты окна валидности: сегодня и extraDays предыдущих дней,
// начиная с сегодняшней. Дни отсчитываются по календарю loc, а не по 24 часа,
// поэтому переход на летнее время не сдвигает окно.
func WindowDays(now time.Time, loc *time.Location, extraDays int) []string {
	if loc == nil {
		loc = time.UTC
	}
	if extraDays < 0 {
		extraDays = 0
	}

	y, m, d := now.In(loc).Date()
	days := make([]string, 0, extraDays+1)
	for offset := 0; offset <= extraDays; offset++ {
		// Полдень исключает попадание на несуществующий час при смене времени.
		day := time.Date(y, m, d-offset, 12, 0, 0, 0, loc)
		days = append(days, day.Format(DateLayout))
	}
	return days
}

// Match сообщает, совпадает ли provided с одним из кандидатов.
// Сравнение точное и регистрозависимое; все кандидаты проверяются
// за постоянное время.
func Match(provided string, candidates []string) bool {
	if provided == "" {
		return false
	}
	matched := 0
	for _, c := range candidates {
		matched |= subtle.ConstantTimeCompare([]byte(provided), []byte(c))
	}
	return matched == 1
}

// Params — параметры защиты, извлечённые из ссылки.
type Params struct {
	FileToken string
	Signature string
}

// ParseParams разбирает ссылку (абсолютную или request URI) и извлекает
// hash и opal-hash. Пустые значения считаются отсутствующими.
// Некорректные пары query (лишний %, разделитель ";") пропускаются, остальные
// используются. При повторе параметра берётся последнее значение.
func ParseParams(rawURL string) (Params, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Params{}, ErrMalformedURL
	}
	// ParseQuery возвращает корректно разобранные пары и при ошибке
	q, _ := url.ParseQuery(u.RawQuery)
	return Params{
		FileToken: lastValue(q, ParamFileToken),
		Signature: lastValue(q, ParamSignature),
	}, nil
}

func lastValue(q url.Values, key string) string {
	vs := q[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

// WithSignature возвращает ссылку с параметром opal-hash = signature.
// Существующий opal-hash заменяется, порядок прочих параметров сохраняется.
func WithSignature(rawURL, signature string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrMalformedURL
	}

	kept := make([]string, 0, 4)
	if u.RawQuery != "" {
		for _, part := range strings.Split(u.RawQuery, "&") {
			if part == "" {
				continue
			}
			key, _, _ := strings.Cut(part, "=")
			if k, unescErr := url.QueryUnescape(key); unescErr == nil && k == ParamSignature {
				continue
			}
			kept = append(kept, part)
		}
	}
	kept = append(kept, ParamSignature+"="+url.QueryEscape(signature))
	u.RawQuery = strings.Join(kept, "&")
	return u.String(), nil
}
