package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_Generated(t *testing.T) {
	var fromCtx string
	handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		fromCtx = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	header := rec.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("X-Request-ID %q не UUID: %v", header, err)
	}
	if fromCtx != header {
		t.Errorf("в контексте %q, в ответе %q", fromCtx, header)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	handler := RequestID()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, ожидается abc-123", got)
	}

	// Слишком длинный идентификатор заменяется
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); len(got) != 36 {
		t.Errorf("ожидался сгенерированный UUID, получено %q", got)
	}
}

func TestRequestLogger_LevelAndNoQuery(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusForbidden, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("ok"))
		}))
		req := httptest.NewRequest(http.MethodGet, "/download?hash=abc&opal-hash=secret", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("лог не JSON: %v (%s)", err, buf.String())
		}
		if entry["level"] != tt.wantLevel {
			t.Errorf("статус %d: level = %v, ожидается %s", tt.status, entry["level"], tt.wantLevel)
		}
		if entry["path"] != "/download" {
			t.Errorf("path = %v", entry["path"])
		}
		if strings.Contains(buf.String(), "opal-hash") {
			t.Error("query string попала в лог")
		}
		if entry["bytes"] != float64(2) {
			t.Errorf("bytes = %v, ожидается 2", entry["bytes"])
		}
	}
}
