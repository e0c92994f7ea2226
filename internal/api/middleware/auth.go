// auth.go — JWT-аутентификация вызовов Link Guard API.
//
// API вызывают два вида субъектов Keycloak:
//   - сервисный аккаунт хост-приложения (client credentials, scopes links:sign,
//     downloads:authorize, settings:read, settings:write);
//   - администратор (OIDC, роль из групп admin / readonly).
//
// Подпись токена проверяется по JWKS Keycloak.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/link-guard/internal/api/errors"
)

type contextKey string

// ContextKeyClaims — ключ AuthClaims в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// SubjectType — тип субъекта JWT.
type SubjectType string

const (
	SubjectTypeUser SubjectType = "user"
	SubjectTypeSA   SubjectType = "service_account"
)

// Роли администраторов.
const (
	RoleReadonly = "readonly"
	RoleAdmin    = "admin"
)

// Scopes сервисных аккаунтов.
const (
	ScopeLinksSign          = "links:sign"
	ScopeDownloadsAuthorize = "downloads:authorize"
	ScopeSettingsRead       = "settings:read"
	ScopeSettingsWrite      = "settings:write"
)

var (
	errNoAuthHeader  = errors.New("отсутствует заголовок Authorization")
	errBadAuthHeader = errors.New("неверный формат Authorization: ожидается Bearer <token>")
)

// AuthClaims — субъект запроса, извлечённый из JWT.
type AuthClaims struct {
	Subject     string
	SubjectType SubjectType
	Username    string
	ClientID    string
	Groups      []string
	// Role — admin, readonly или пусто (только для пользователей)
	Role   string
	Scopes []string
}

// Actor возвращает имя субъекта для аудита (updated_by).
func (c *AuthClaims) Actor() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.ClientID != "":
		return c.ClientID
	default:
		return c.Subject
	}
}

// Allowed сообщает, проходит ли субъект проверку RequireRoleOrScope.
func (c *AuthClaims) Allowed(roles, scopes []string) bool {
	switch c.SubjectType {
	case SubjectTypeUser:
		return c.Role != "" && slices.Contains(roles, c.Role)
	case SubjectTypeSA:
		return slices.ContainsFunc(c.Scopes, func(s string) bool { return slices.Contains(scopes, s) })
	default:
		return false
	}
}

// keycloakClaims — поля Keycloak JWT, используемые Link Guard.
type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string   `json:"preferred_username"`
	Groups            []string `json:"groups,omitempty"`
	RealmAccess       *struct {
		Roles []string `json:"roles"`
	} `json:"realm_access,omitempty"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// JWTAuthConfig — параметры проверки JWT.
type JWTAuthConfig struct {
	JWKSURL         string
	CACertPath      string
	Issuer          string
	AdminGroups     []string
	ReadonlyGroups  []string
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	Leeway          time.Duration
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	jwks   keyfunc.Keyfunc
	cfg    JWTAuthConfig
	logger *slog.Logger
}

// NewJWTAuth создаёт middleware с фоновым обновлением JWKS.
// Старт не блокируется недоступностью Keycloak.
func NewJWTAuth(cfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	client := &http.Client{Timeout: cfg.ClientTimeout}
	if cfg.CACertPath != "" {
		var err error
		client, err = httpClientWithCA(cfg.CACertPath, cfg.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.CACertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", cfg.CACertPath),
		)
	}

	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(kf, cfg, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовым keyfunc (тесты).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, cfg JWTAuthConfig, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:   kf,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware проверяет Bearer token и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}

			claims, err := j.parse(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyClaims, claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoAuthHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadAuthHeader
	}
	return strings.TrimSpace(token), nil
}

// parse валидирует токен (RS256, exp обязателен, issuer если задан)
// и строит AuthClaims.
func (j *JWTAuth) parse(ctx context.Context, tokenString string) (*AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.cfg.Leeway),
	}
	if j.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.cfg.Issuer))
	}

	raw := &keycloakClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("токен невалиден")
	}
	if raw.Subject == "" {
		return nil, errors.New("отсутствует sub")
	}

	claims := &AuthClaims{
		Subject:  raw.Subject,
		Username: raw.PreferredUsername,
	}

	// Сервисный аккаунт Keycloak: client_id и scope, без групп
	if raw.ClientID != "" && raw.Scope != "" {
		claims.SubjectType = SubjectTypeSA
		claims.ClientID = raw.ClientID
		claims.Scopes = strings.Fields(raw.Scope)
		return claims, nil
	}

	claims.SubjectType = SubjectTypeUser
	claims.Groups = raw.Groups
	claims.Role = j.roleFor(raw)
	return claims, nil
}

// roleFor вычисляет роль пользователя: сначала по группам, затем по realm roles.
func (j *JWTAuth) roleFor(raw *keycloakClaims) string {
	hasAny := func(have, want []string) bool {
		return slices.ContainsFunc(have, func(s string) bool { return slices.Contains(want, s) })
	}

	switch {
	case hasAny(raw.Groups, j.cfg.AdminGroups):
		return RoleAdmin
	case hasAny(raw.Groups, j.cfg.ReadonlyGroups):
		return RoleReadonly
	}

	if raw.RealmAccess != nil {
		switch {
		case slices.Contains(raw.RealmAccess.Roles, RoleAdmin):
			return RoleAdmin
		case slices.Contains(raw.RealmAccess.Roles, RoleReadonly):
			return RoleReadonly
		}
	}
	return ""
}

// RequireRoleOrScope пропускает пользователей с одной из ролей
// и сервисные аккаунты с одним из scopes. Используется после JWTAuth.Middleware().
func RequireRoleOrScope(roles, scopes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if claims.Allowed(roles, scopes) {
				next.ServeHTTP(w, r)
				return
			}

			switch claims.SubjectType {
			case SubjectTypeUser:
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+strings.Join(roles, " или "))
			case SubjectTypeSA:
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+strings.Join(scopes, " или "))
			default:
				apierrors.Forbidden(w, "Неизвестный тип субъекта")
			}
		})
	}
}

// ClaimsFromContext возвращает AuthClaims или nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// ActorFromContext возвращает имя субъекта для аудита или пустую строку.
func ActorFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Actor()
	}
	return ""
}

// WithClaims помещает claims в контекст. Используется в тестах обработчиков.
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}
