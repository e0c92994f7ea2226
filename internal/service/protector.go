// protector.go — FileProtector: вторичная подпись ссылок скачивания (opal-hash).
//
// Две точки расширения базового пайплайна скачивания:
//   - IssueLink — перед выдачей ссылки: добавляет подпись;
//   - AuthorizeDownload — перед отдачей файла: проверяет подпись.
//
// Плюс две вспомогательные: RequireLogin и UploadRules.
// Ни одна операция не возвращает ошибку наружу: сбой подписи означает ссылку
// без подписи, сбой проверки — отказ в скачивании.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/link-guard/internal/domain/linksig"
	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
	"github.com/bigkaa/goartstore/link-guard/internal/repository"
)

// Результаты выдачи ссылки (лейбл result метрики lg_links_issued_total).
const (
	IssueSigned            = "signed"
	IssueSkipAnonymous     = "skipped_anonymous"
	IssueSkipUnprotected   = "skipped_unprotected"
	IssueSkipNoToken       = "skipped_no_token"
	IssueSkipNoSecret      = "skipped_no_secret"
	IssueSkipNoSession     = "skipped_no_session"
	IssueSkipSessionError  = "skipped_session_error"
	IssueSkipSettingsError = "skipped_settings_error"
	IssueSkipMalformedURL  = "skipped_malformed_url"
)

// Результаты проверки скачивания (лейбл result метрики lg_download_checks_total).
const (
	CheckAllowed       = "allowed"
	CheckPassThrough   = "passthrough"
	CheckAlreadyDenied = "already_denied"
	CheckMissingParams = "denied_missing_params"
	CheckMismatch      = "denied_mismatch"
	CheckNoSecret      = "denied_no_secret"
	CheckNoSession     = "denied_no_session"
	CheckSessionError  = "denied_session_error"
	CheckSettingsError = "denied_settings_error"
)

var (
	linksIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lg_links_issued_total",
			Help: "Количество обработанных ссылок скачивания по результату.",
		},
		[]string{"result"},
	)
	downloadChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lg_download_checks_total",
			Help: "Количество проверок скачивания по результату.",
		},
		[]string{"result"},
	)
)

// FormSettingsProvider — источник настроек защиты форм.
// Реализуется FormSettingsService.
type FormSettingsProvider interface {
	// Resolve возвращает действующие настройки (для формы без записи — по умолчанию).
	Resolve(ctx context.Context, formID int64) (*model.FormSettings, error)
	// BlockedFormIDs возвращает формы с запретом прямого доступа к загрузкам.
	BlockedFormIDs(ctx context.Context) ([]int64, error)
}

// ProtectorConfig — параметры подписи.
type ProtectorConfig struct {
	// Secret — общий секрет; пустой отключает подпись
	Secret string
	// ExtraDays — сколько предыдущих дней подпись остаётся валидной
	ExtraDays int
	// Location — часовой пояс календарной даты
	Location *time.Location
}

// FileProtector — подпись и проверка ссылок скачивания.
// Не хранит состояния между запросами; безопасен для конкурентного использования.
type FileProtector struct {
	settings FormSettingsProvider
	sessions repository.SessionRepository
	cfg      ProtectorConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewFileProtector создаёт FileProtector с внедрёнными хранилищами настроек и сессий.
func NewFileProtector(
	settings FormSettingsProvider,
	sessions repository.SessionRepository,
	cfg ProtectorConfig,
	logger *slog.Logger,
) *FileProtector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ExtraDays < 0 {
		cfg.ExtraDays = 0
	}
	return &FileProtector{
		settings: settings,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "file_protector")),
	}
}

// IssueLink добавляет opal-hash к ссылке скачивания.
// userID — пользователь, которому выдаётся ссылка; пустой — аноним.
// Возвращает ссылку и признак того, что подпись добавлена. При любом
// препятствии ссылка возвращается без изменений.
func (p *FileProtector) IssueLink(ctx context.Context, userID string, formID int64, rawURL string) (string, bool) {
	result, link := p.issue(ctx, userID, formID, rawURL)
	linksIssuedTotal.WithLabelValues(result).Inc()
	return link, result == IssueSigned
}

func (p *FileProtector) issue(ctx context.Context, userID string, formID int64, rawURL string) (string, string) {
	if userID == "" {
		return IssueSkipAnonymous, rawURL
	}

	settings, err := p.settings.Resolve(ctx, formID)
	if err != nil {
		p.logger.Warn("Не удалось получить настройки формы, ссылка выдана без подписи",
			slog.Int64("form_id", formID),
			slog.String("error", err.Error()),
		)
		return IssueSkipSettingsError, rawURL
	}
	if !settings.Protected() {
		return IssueSkipUnprotected, rawURL
	}

	params, err := linksig.ParseParams(rawURL)
	if err != nil {
		return IssueSkipMalformedURL, rawURL
	}
	if params.FileToken == "" {
		return IssueSkipNoToken, rawURL
	}

	if p.cfg.Secret == "" {
		p.logger.Debug("Секрет подписи не задан, ссылка выдана без подписи",
			slog.Int64("form_id", formID),
		)
		return IssueSkipNoSecret, rawURL
	}

	session, result := p.latestSession(ctx, userID, IssueSkipNoSession, IssueSkipSessionError)
	if session == nil {
		return result, rawURL
	}

	signature, err := linksig.Sign(linksig.Context{
		FileToken:    params.FileToken,
		UserID:       userID,
		Date:         linksig.DayStamp(p.now(), p.cfg.Location),
		SessionLogin: session.LoginTimestamp(),
		Secret:       p.cfg.Secret,
	})
	if err != nil {
		return IssueSkipNoSecret, rawURL
	}

	signed, err := linksig.WithSignature(rawURL, signature)
	if err != nil {
		return IssueSkipMalformedURL, rawURL
	}
	return IssueSigned, signed
}

// AuthorizeDownload проверяет opal-hash в запросе скачивания.
// granted — решение базового пайплайна; результат может только понизить его.
// Для формы без защиты возвращает granted без изменений.
func (p *FileProtector) AuthorizeDownload(
	ctx context.Context,
	userID string,
	formID int64,
	requestURL string,
	granted bool,
) bool {
	result, allowed := p.authorize(ctx, userID, formID, requestURL, granted)
	downloadChecksTotal.WithLabelValues(result).Inc()
	return allowed
}

func (p *FileProtector) authorize(
	ctx context.Context,
	userID string,
	formID int64,
	requestURL string,
	granted bool,
) (string, bool) {
	settings, err := p.settings.Resolve(ctx, formID)
	if err != nil {
		p.logger.Warn("Не удалось получить настройки формы, скачивание запрещено",
			slog.Int64("form_id", formID),
			slog.String("error", err.Error()),
		)
		return CheckSettingsError, false
	}
	if !settings.Protected() {
		return CheckPassThrough, granted
	}
	if !granted {
		return CheckAlreadyDenied, false
	}

	params, err := linksig.ParseParams(requestURL)
	if err != nil || params.FileToken == "" || params.Signature == "" {
		return CheckMissingParams, false
	}

	if p.cfg.Secret == "" {
		p.logger.Debug("Секрет подписи не задан, проверка подписи невозможна",
			slog.Int64("form_id", formID),
		)
		return CheckNoSecret, false
	}

	if userID == "" {
		return CheckNoSession, false
	}

	// Последняя сессия одна на всё окно, поэтому запрашивается один раз.
	session, result := p.latestSession(ctx, userID, CheckNoSession, CheckSessionError)
	if session == nil {
		return result, false
	}

	days := linksig.WindowDays(p.now(), p.cfg.Location, p.cfg.ExtraDays)
	candidates := make([]string, 0, len(days))
	for _, day := range days {
		sig, signErr := linksig.Sign(linksig.Context{
			FileToken:    params.FileToken,
			UserID:       userID,
			Date:         day,
			SessionLogin: session.LoginTimestamp(),
			Secret:       p.cfg.Secret,
		})
		if signErr != nil {
			continue
		}
		candidates = append(candidates, sig)
	}

	if !linksig.Match(params.Signature, candidates) {
		return CheckMismatch, false
	}
	return CheckAllowed, true
}

// latestSession запрашивает последнюю сессию пользователя.
// Отсутствие сессий (Debug) и сбой хранилища (Warn) различаются в логах и метриках.
func (p *FileProtector) latestSession(
	ctx context.Context,
	userID string,
	noSessionResult, errorResult string,
) (*model.Session, string) {
	session, err := p.sessions.LatestSession(ctx, userID)
	switch {
	case err == nil:
		return session, ""
	case errors.Is(err, repository.ErrNoActiveSession):
		p.logger.Debug("У пользователя нет активных сессий",
			slog.String("user_id", userID),
		)
		return nil, noSessionResult
	default:
		p.logger.Warn("Ошибка получения сессии пользователя",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, errorResult
	}
}

// RequireLogin возвращает true, если форма требует входа для скачивания;
// иначе — requireLogin без изменений. Никогда не снимает требование входа.
func (p *FileProtector) RequireLogin(ctx context.Context, formID int64, requireLogin bool) bool {
	settings, err := p.settings.Resolve(ctx, formID)
	if err != nil {
		p.logger.Warn("Не удалось получить настройки формы для require_login",
			slog.Int64("form_id", formID),
			slog.String("error", err.Error()),
		)
		return requireLogin
	}
	return requireLogin || settings.RequireLoginForDownloads
}

// UploadRules дополняет правила .htaccess корневой папки загрузок запретом
// прямого доступа к папкам форм с включённой блокировкой. Папки форм
// начинаются с "<form_id>-". Работает только на Apache/LiteSpeed.
func (p *FileProtector) UploadRules(ctx context.Context, rules []string) []string {
	ids, err := p.settings.BlockedFormIDs(ctx)
	if err != nil {
		p.logger.Warn("Не удалось получить формы с блокировкой загрузок, правила не изменены",
			slog.String("error", err.Error()),
		)
		return rules
	}
	if len(ids) == 0 {
		return rules
	}

	return append(append(make([]string, 0, len(rules)+4), rules...),
		"<IfModule mod_rewrite.c>",
		"  RewriteEngine On",
		"  RewriteRule "+blockRewriteRule(ids),
		"</IfModule>",
	)
}

// blockRewriteRule строит правило вида "^10-|11- - [F]".
func blockRewriteRule(formIDs []int64) string {
	prefixes := make([]string, len(formIDs))
	for i, id := range formIDs {
		prefixes[i] = strconv.FormatInt(id, 10) + "-"
	}
	return "^" + strings.Join(prefixes, "|") + " - [F]"
}
