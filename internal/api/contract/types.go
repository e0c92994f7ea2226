package contract

import "time"

// FormID — path-параметр form_id.
type FormID = int64

// SignLinkRequest — тело POST /api/v1/links/sign.
type SignLinkRequest struct {
	FormID int64  `json:"form_id"`
	URL    string `json:"url"`
	// UserID — получатель ссылки; пусто — аноним
	UserID string `json:"user_id,omitempty"`
}

// SignLinkResponse — ссылка после обработки.
type SignLinkResponse struct {
	URL    string `json:"url"`
	Signed bool   `json:"signed"`
}

// AuthorizeDownloadRequest — тело POST /api/v1/downloads/authorize.
type AuthorizeDownloadRequest struct {
	FormID int64 `json:"form_id"`
	// URL — URI запроса скачивания с query string
	URL               string `json:"url"`
	UserID            string `json:"user_id,omitempty"`
	PermissionGranted bool   `json:"permission_granted"`
}

// AuthorizeDownloadResponse — итоговое решение.
type AuthorizeDownloadResponse struct {
	PermissionGranted bool `json:"permission_granted"`
}

// RequireLoginRequest — тело POST /api/v1/downloads/require-login.
type RequireLoginRequest struct {
	FormID       int64 `json:"form_id"`
	RequireLogin bool  `json:"require_login"`
}

// RequireLoginResponse — итоговое значение.
type RequireLoginResponse struct {
	RequireLogin bool `json:"require_login"`
}

// UploadRules — правила .htaccess (запрос и ответ POST /api/v1/upload-rules).
type UploadRules struct {
	Rules []string `json:"rules"`
}

// FormSettings — настройки защиты формы.
type FormSettings struct {
	FormID                     int64      `json:"form_id"`
	RequireLoginForDownloads   bool       `json:"require_login_for_downloads"`
	BlockDirectAccessToUploads bool       `json:"block_direct_access_to_uploads"`
	UpdatedAt                  *time.Time `json:"updated_at,omitempty"`
	UpdatedBy                  string     `json:"updated_by,omitempty"`
}

// FormSettingsList — ответ GET /api/v1/forms/settings.
type FormSettingsList struct {
	Items []FormSettings `json:"items"`
}

// UpdateFormSettingsRequest — тело PUT /api/v1/forms/{form_id}/settings.
type UpdateFormSettingsRequest struct {
	RequireLoginForDownloads   bool `json:"require_login_for_downloads"`
	BlockDirectAccessToUploads bool `json:"block_direct_access_to_uploads"`
}
