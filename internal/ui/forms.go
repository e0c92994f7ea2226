// Пакет ui — HTML-обзор защиты форм (/ui/forms).
// Страница только для чтения; изменения выполняются через API.
package ui

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/goartstore/link-guard/internal/api/middleware"
	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
)

// SettingsLister — источник списка настроек форм.
type SettingsLister interface {
	List(ctx context.Context) ([]model.FormSettings, error)
}

// FormsPageData — данные страницы обзора.
type FormsPageData struct {
	Username      string
	Role          string
	Forms         []model.FormSettings
	SigningActive bool
}

// FormsHandler — обработчик страницы /ui/forms.
type FormsHandler struct {
	settings      SettingsLister
	signingActive bool
	logger        *slog.Logger
}

// NewFormsHandler создаёт обработчик. signingActive — задан ли LG_HASH_SECRET.
func NewFormsHandler(settings SettingsLister, signingActive bool, logger *slog.Logger) *FormsHandler {
	return &FormsHandler{
		settings:      settings,
		signingActive: signingActive,
		logger:        logger.With(slog.String("component", "ui.forms")),
	}
}

// HandleForms обрабатывает GET /ui/forms.
func (h *FormsHandler) HandleForms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.settings.List(ctx)
	if err != nil {
		h.logger.Error("Ошибка получения настроек форм",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка получения настроек форм", http.StatusInternalServerError)
		return
	}
	sort.Slice(list, func(i, j int) bool { return list[i].FormID < list[j].FormID })

	data := FormsPageData{
		Forms:         list,
		SigningActive: h.signingActive,
	}
	if claims := middleware.ClaimsFromContext(ctx); claims != nil {
		data.Username = claims.Actor()
		data.Role = claims.Role
	}

	templ.Handler(FormsPage(data),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			h.logger.Error("Ошибка рендеринга страницы форм",
				slog.String("error", err.Error()),
			)
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}

// FormsPage — страница со списком форм и их флагами защиты.
func FormsPage(data FormsPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="ru"><head><meta charset="utf-8">`+
			`<title>Link Guard: формы</title></head><body><header><h1>Защита файлов форм</h1>`); err != nil {
			return err
		}
		if data.Username != "" {
			if _, err := io.WriteString(w, `<p class="user">`+templ.EscapeString(data.Username)+
				` (`+templ.EscapeString(data.Role)+`)</p>`); err != nil {
				return err
			}
		}
		if !data.SigningActive {
			if _, err := io.WriteString(w, `<p class="alert">Секрет подписи не задан: ссылки не подписываются, проверка защищённых скачиваний отклоняет все запросы.</p>`); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</header><main>`); err != nil {
			return err
		}
		if err := formsTable(data.Forms).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func formsTable(forms []model.FormSettings) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(forms) == 0 {
			_, err := io.WriteString(w, `<p class="empty">Настройки форм не заданы</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<table><thead><tr><th>Форма</th><th>Вход для скачивания</th>`+
			`<th>Блокировка папки загрузок</th><th>Изменено</th><th>Кем</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for i := range forms {
			f := &forms[i]
			updated := ""
			if !f.UpdatedAt.IsZero() {
				updated = f.UpdatedAt.UTC().Format(time.DateTime)
			}
			row := `<tr` + rowClass(f) + `><td>` + strconv.FormatInt(f.FormID, 10) + `</td><td>` +
				flag(f.RequireLoginForDownloads) + `</td><td>` + flag(f.BlockDirectAccessToUploads) + `</td><td>` +
				templ.EscapeString(updated) + `</td><td>` + templ.EscapeString(f.UpdatedBy) + `</td></tr>`
			if _, err := io.WriteString(w, row); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}

func rowClass(f *model.FormSettings) string {
	if f.Protected() {
		return ` class="protected"`
	}
	return ""
}

func flag(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}
