// links.go — точки расширения пайплайна скачивания:
// подпись ссылки, проверка скачивания, require_login и правила папки загрузок.
// Авторизация — RequireRoleOrScope на уровне router.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/link-guard/internal/api/contract"
	apierrors "github.com/bigkaa/goartstore/link-guard/internal/api/errors"
)

// SignLink — POST /api/v1/links/sign.
// Ответ всегда 200: при невозможности подписи возвращается исходная ссылка.
func (h *APIHandler) SignLink(w http.ResponseWriter, r *http.Request) {
	var req contract.SignLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if req.FormID <= 0 || req.URL == "" {
		apierrors.ValidationError(w, "form_id и url обязательны")
		return
	}

	link, signed := h.protector.IssueLink(r.Context(), req.UserID, req.FormID, req.URL)
	writeJSON(w, http.StatusOK, contract.SignLinkResponse{URL: link, Signed: signed})
}

// AuthorizeDownload — POST /api/v1/downloads/authorize.
func (h *APIHandler) AuthorizeDownload(w http.ResponseWriter, r *http.Request) {
	var req contract.AuthorizeDownloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if req.FormID <= 0 || req.URL == "" {
		apierrors.ValidationError(w, "form_id и url обязательны")
		return
	}

	granted := h.protector.AuthorizeDownload(r.Context(), req.UserID, req.FormID, req.URL, req.PermissionGranted)
	writeJSON(w, http.StatusOK, contract.AuthorizeDownloadResponse{PermissionGranted: granted})
}

// RequireLogin — POST /api/v1/downloads/require-login.
func (h *APIHandler) RequireLogin(w http.ResponseWriter, r *http.Request) {
	var req contract.RequireLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if req.FormID <= 0 {
		apierrors.ValidationError(w, "form_id должен быть положительным")
		return
	}

	writeJSON(w, http.StatusOK, contract.RequireLoginResponse{
		RequireLogin: h.protector.RequireLogin(r.Context(), req.FormID, req.RequireLogin),
	})
}

// UploadRules — POST /api/v1/upload-rules.
func (h *APIHandler) UploadRules(w http.ResponseWriter, r *http.Request) {
	var req contract.UploadRules
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	rules := h.protector.UploadRules(r.Context(), req.Rules)
	if rules == nil {
		rules = []string{}
	}
	writeJSON(w, http.StatusOK, contract.UploadRules{Rules: rules})
}
