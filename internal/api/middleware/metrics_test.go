package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/links/sign", "/api/v1/links/sign"},
		{"/api/v1/forms/settings", "/api/v1/forms/settings"},
		{"/api/v1/forms/10/settings", "/api/v1/forms/{form_id}/settings"},
		{"/api/v1/forms/abc/settings", "/api/v1/forms/{form_id}/settings"},
		{"/api/v1/forms//settings", "other"},
		{"/api/v1/forms/10/other", "other"},
		{"/wp-admin/install.php", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_CountsStatus(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/forms/{form_id}/settings", "404")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forms/77/settings", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("счётчик увеличился на %v, ожидается 1", got)
	}
}
