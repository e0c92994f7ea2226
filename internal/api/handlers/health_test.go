package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticChecker struct {
	status  string
	message string
}

func (c staticChecker) CheckReady() (string, string) {
	return c.status, c.message
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler()
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, ожидается 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Status != statusOK || resp.Service != serviceName {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []NamedChecker
		wantStatus string
		wantCode   int
	}{
		{
			name: "все ok",
			checks: []NamedChecker{
				{Name: "postgresql", Checker: staticChecker{status: statusOK}},
				{Name: "keycloak", Checker: staticChecker{status: statusOK}},
			},
			wantStatus: statusOK,
			wantCode:   http.StatusOK,
		},
		{
			name: "degraded",
			checks: []NamedChecker{
				{Name: "postgresql", Checker: staticChecker{status: statusOK}},
				{Name: "redis", Checker: staticChecker{status: statusDegraded, message: "медленно"}},
			},
			wantStatus: statusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name: "fail",
			checks: []NamedChecker{
				{Name: "postgresql", Checker: staticChecker{status: statusFail, message: "нет соединения"}},
				{Name: "redis", Checker: staticChecker{status: statusDegraded}},
			},
			wantStatus: statusFail,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "checker не задан",
			checks:     []NamedChecker{{Name: "keycloak"}},
			wantStatus: statusFail,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks...)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("статус %d, ожидается %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("ответ не JSON: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, ожидается %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %v", resp.Checks)
			}
			for _, c := range tt.checks {
				if _, ok := resp.Checks[c.Name]; !ok {
					t.Errorf("нет проверки %q", c.Name)
				}
			}
		})
	}
}

func TestGetMetrics(t *testing.T) {
	h := NewHealthHandler()
	rec := httptest.NewRecorder()
	h.GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("в ответе нет стандартных метрик Go")
	}
}
