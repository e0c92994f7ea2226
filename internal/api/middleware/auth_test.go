package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID  = "test-key-lg"
	testIssuer = "https://keycloak.test/realms/artstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// tokenIssuer подписывает тестовые JWT и отдаёт соответствующий JWKS.
type tokenIssuer struct {
	t   *testing.T
	key *rsa.PrivateKey
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return &tokenIssuer{t: t, key: key}
}

func (ti *tokenIssuer) jwksJSON() json.RawMessage {
	pub := ti.key.PublicKey
	data, _ := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
	return data
}

func (ti *tokenIssuer) auth() *JWTAuth {
	ti.t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(ti.jwksJSON())
	if err != nil {
		ti.t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, JWTAuthConfig{
		Issuer:         testIssuer,
		AdminGroups:    []string{"artsore-admins"},
		ReadonlyGroups: []string{"artsore-viewers"},
		Leeway:         5 * time.Second,
	}, testLogger())
}

// sign выпускает токен; базовые claims (iss, exp, iat) дополняются extra,
// nil в extra удаляет claim.
func (ti *tokenIssuer) sign(extra jwt.MapClaims) string {
	ti.t.Helper()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(ti.key)
	if err != nil {
		ti.t.Fatal(err)
	}
	return s
}

func userToken(ti *tokenIssuer, groups ...string) string {
	return ti.sign(jwt.MapClaims{
		"sub":                "user-123",
		"preferred_username": "ivanov",
		"groups":             groups,
	})
}

func serviceToken(ti *tokenIssuer, scope string) string {
	return ti.sign(jwt.MapClaims{
		"sub":       "sa-uuid-1",
		"client_id": "wp-host",
		"scope":     scope,
	})
}

// serveWithAuth пропускает запрос через JWTAuth и возвращает claims из контекста.
func serveWithAuth(t *testing.T, auth *JWTAuth, header string) (*httptest.ResponseRecorder, *AuthClaims) {
	t.Helper()
	var got *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/links/sign", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

func TestJWTAuth_UserToken(t *testing.T) {
	ti := newTokenIssuer(t)

	tests := []struct {
		name     string
		groups   []string
		wantRole string
	}{
		{"группа администраторов", []string{"artsore-admins"}, RoleAdmin},
		{"группа наблюдателей", []string{"artsore-viewers"}, RoleReadonly},
		{"обе группы — старшая роль", []string{"artsore-viewers", "artsore-admins"}, RoleAdmin},
		{"чужая группа", []string{"marketing"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serveWithAuth(t, ti.auth(), "Bearer "+userToken(ti, tt.groups...))
			if rec.Code != http.StatusOK {
				t.Fatalf("статус %d, тело: %s", rec.Code, rec.Body.String())
			}
			if claims.SubjectType != SubjectTypeUser {
				t.Errorf("SubjectType = %s", claims.SubjectType)
			}
			if claims.Role != tt.wantRole {
				t.Errorf("Role = %q, ожидается %q", claims.Role, tt.wantRole)
			}
			if claims.Actor() != "ivanov" {
				t.Errorf("Actor() = %q", claims.Actor())
			}
		})
	}
}

func TestJWTAuth_RealmRoleFallback(t *testing.T) {
	ti := newTokenIssuer(t)
	token := ti.sign(jwt.MapClaims{
		"sub":          "user-9",
		"realm_access": map[string]any{"roles": []string{"offline_access", "readonly"}},
	})

	rec, claims := serveWithAuth(t, ti.auth(), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if claims.Role != RoleReadonly {
		t.Errorf("Role = %q, ожидается readonly", claims.Role)
	}
	if claims.Actor() != "user-9" {
		t.Errorf("Actor() без username должен вернуть sub, получено %q", claims.Actor())
	}
}

func TestJWTAuth_ServiceAccountToken(t *testing.T) {
	ti := newTokenIssuer(t)

	rec, claims := serveWithAuth(t, ti.auth(), "Bearer "+serviceToken(ti, "openid links:sign downloads:authorize"))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, тело: %s", rec.Code, rec.Body.String())
	}
	if claims.SubjectType != SubjectTypeSA {
		t.Errorf("SubjectType = %s", claims.SubjectType)
	}
	if claims.Actor() != "wp-host" {
		t.Errorf("Actor() = %q", claims.Actor())
	}
	if !claims.Allowed(nil, []string{ScopeDownloadsAuthorize}) {
		t.Error("ожидался доступ по scope downloads:authorize")
	}
	if claims.Allowed([]string{RoleAdmin}, []string{ScopeSettingsWrite}) {
		t.Error("scope settings:write не выдан")
	}
}

func TestJWTAuth_Rejected(t *testing.T) {
	ti := newTokenIssuer(t)
	other := newTokenIssuer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"нет заголовка", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"без префикса", "token123"},
		{"пустой bearer", "Bearer "},
		{"просроченный", "Bearer " + ti.sign(jwt.MapClaims{
			"sub": "u", "exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})},
		{"без exp", "Bearer " + ti.sign(jwt.MapClaims{"sub": "u", "exp": nil})},
		{"чужой issuer", "Bearer " + ti.sign(jwt.MapClaims{"sub": "u", "iss": "https://evil.test"})},
		{"без sub", "Bearer " + ti.sign(jwt.MapClaims{"groups": []string{"artsore-admins"}})},
		{"чужой ключ", "Bearer " + userToken(other, "artsore-admins")},
		{"мусор", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serveWithAuth(t, ti.auth(), tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
			if claims != nil {
				t.Error("handler не должен быть вызван")
			}
		})
	}
}

func TestRequireRoleOrScope(t *testing.T) {
	mw := RequireRoleOrScope([]string{RoleAdmin}, []string{ScopeSettingsWrite})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		claims *AuthClaims
		want   int
	}{
		{"без claims", nil, http.StatusUnauthorized},
		{"admin", &AuthClaims{SubjectType: SubjectTypeUser, Role: RoleAdmin}, http.StatusNoContent},
		{"readonly", &AuthClaims{SubjectType: SubjectTypeUser, Role: RoleReadonly}, http.StatusForbidden},
		{"пользователь без роли", &AuthClaims{SubjectType: SubjectTypeUser}, http.StatusForbidden},
		{"SA с нужным scope", &AuthClaims{SubjectType: SubjectTypeSA, Scopes: []string{"openid", ScopeSettingsWrite}}, http.StatusNoContent},
		{"SA без scope", &AuthClaims{SubjectType: SubjectTypeSA, Scopes: []string{ScopeSettingsRead}}, http.StatusForbidden},
		{"неизвестный тип", &AuthClaims{SubjectType: "robot", Role: RoleAdmin}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/forms/1/settings", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("статус %d, ожидается %d", rec.Code, tt.want)
			}
		})
	}
}

func TestKeycloakReadinessChecker(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
	}{
		{"есть ключи", http.StatusOK, `{"keys":[{"kid":"a"}]}`, "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"невалидный JSON", http.StatusOK, `{`, "degraded"},
		{"ошибка сервера", http.StatusBadGateway, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewKeycloakReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if status, msg := checker.CheckReady(); status != tt.wantStatus {
				t.Errorf("CheckReady() = %s (%s), ожидается %s", status, msg, tt.wantStatus)
			}
		})
	}
}

func TestKeycloakReadinessChecker_Unreachable(t *testing.T) {
	checker, err := NewKeycloakReadinessChecker("http://127.0.0.1:1/certs", "", 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if status, _ := checker.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() = %s, ожидается fail", status)
	}
}

func TestNewKeycloakReadinessChecker_BadCA(t *testing.T) {
	if _, err := NewKeycloakReadinessChecker("https://kc.test/certs", "/nonexistent/ca.pem", time.Second); err == nil {
		t.Error("ожидалась ошибка загрузки CA")
	}
}
