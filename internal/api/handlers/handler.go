// handler.go — APIHandler реализует contract.ServerInterface
// и делегирует вызовы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bigkaa/goartstore/link-guard/internal/api/contract"
	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
)

// maxBodyBytes — предел тела запроса.
const maxBodyBytes = 1 << 20

// LinkProtector — операции защиты ссылок (service.FileProtector).
type LinkProtector interface {
	IssueLink(ctx context.Context, userID string, formID int64, rawURL string) (string, bool)
	AuthorizeDownload(ctx context.Context, userID string, formID int64, requestURL string, granted bool) bool
	RequireLogin(ctx context.Context, formID int64, requireLogin bool) bool
	UploadRules(ctx context.Context, rules []string) []string
}

// SettingsManager — администрирование настроек форм (service.FormSettingsService).
type SettingsManager interface {
	Get(ctx context.Context, formID int64) (*model.FormSettings, error)
	List(ctx context.Context) ([]model.FormSettings, error)
	Update(ctx context.Context, formID int64, requireLogin, blockDirectAccess bool, updatedBy string) (*model.FormSettings, error)
}

var _ contract.ServerInterface = (*APIHandler)(nil)

// APIHandler — обработчик Link Guard API.
type APIHandler struct {
	protector LinkProtector
	settings  SettingsManager
	logger    *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(protector LinkProtector, settings SettingsManager, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		protector: protector,
		settings:  settings,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// decodeJSON читает тело запроса в dst. Неизвестные поля и лишние данные — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("некорректное тело запроса: ожидается один JSON-объект")
	}
	return nil
}
