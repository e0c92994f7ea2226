// settings.go — администрирование настроек защиты форм.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/goartstore/link-guard/internal/api/contract"
	apierrors "github.com/bigkaa/goartstore/link-guard/internal/api/errors"
	"github.com/bigkaa/goartstore/link-guard/internal/api/middleware"
	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
	"github.com/bigkaa/goartstore/link-guard/internal/repository"
	"github.com/bigkaa/goartstore/link-guard/internal/service"
)

// ListFormSettings — GET /api/v1/forms/settings.
func (h *APIHandler) ListFormSettings(w http.ResponseWriter, r *http.Request) {
	list, err := h.settings.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения списка настроек форм",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении настроек")
		return
	}

	items := make([]contract.FormSettings, 0, len(list))
	for i := range list {
		items = append(items, toAPISettings(&list[i]))
	}
	writeJSON(w, http.StatusOK, contract.FormSettingsList{Items: items})
}

// GetFormSettings — GET /api/v1/forms/{form_id}/settings.
// 404, если для формы ничего не сохранено.
func (h *APIHandler) GetFormSettings(w http.ResponseWriter, r *http.Request, formID contract.FormID) {
	settings, err := h.settings.Get(r.Context(), formID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toAPISettings(settings))
	case errors.Is(err, service.ErrInvalidFormID):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		apierrors.NotFound(w, "Настройки формы не найдены")
	default:
		h.logger.Error("Ошибка получения настроек формы",
			slog.Int64("form_id", formID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении настроек")
	}
}

// UpdateFormSettings — PUT /api/v1/forms/{form_id}/settings.
func (h *APIHandler) UpdateFormSettings(w http.ResponseWriter, r *http.Request, formID contract.FormID) {
	var req contract.UpdateFormSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	saved, err := h.settings.Update(r.Context(), formID,
		req.RequireLoginForDownloads, req.BlockDirectAccessToUploads,
		middleware.ActorFromContext(r.Context()),
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toAPISettings(saved))
	case errors.Is(err, service.ErrInvalidFormID):
		apierrors.ValidationError(w, err.Error())
	default:
		h.logger.Error("Ошибка сохранения настроек формы",
			slog.Int64("form_id", formID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при сохранении настроек")
	}
}

func toAPISettings(s *model.FormSettings) contract.FormSettings {
	out := contract.FormSettings{
		FormID:                     s.FormID,
		RequireLoginForDownloads:   s.RequireLoginForDownloads,
		BlockDirectAccessToUploads: s.BlockDirectAccessToUploads,
		UpdatedBy:                  s.UpdatedBy,
	}
	if !s.UpdatedAt.IsZero() {
		updatedAt := s.UpdatedAt.UTC()
		out.UpdatedAt = &updatedAt
	}
	return out
}
