// Пакет server — HTTP-сервер Link Guard с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/link-guard/internal/api/contract"
	"github.com/bigkaa/goartstore/link-guard/internal/api/handlers"
	"github.com/bigkaa/goartstore/link-guard/internal/api/middleware"
	"github.com/bigkaa/goartstore/link-guard/internal/config"
	"github.com/bigkaa/goartstore/link-guard/internal/ui"
)

// Публичные пути: без JWT.
const (
	PrefixHealth = "/health/"
	PathMetrics  = "/metrics"
)

// Handlers — обработчики, которые монтирует сервер.
type Handlers struct {
	API    contract.ServerInterface
	Health *handlers.HealthHandler
	// Forms — страница /ui/forms; nil — страница не монтируется
	Forms *ui.FormsHandler
}

// Server — HTTP-сервер Link Guard.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// middlewares применяются ко всем маршрутам в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(h, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi router: health, metrics, UI и операции API с RBAC.
func NewRouter(h Handlers, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get(PrefixHealth+"live", h.Health.HealthLive)
	router.Get(PrefixHealth+"ready", h.Health.HealthReady)
	router.Get(PathMetrics, h.Health.GetMetrics)

	if h.Forms != nil {
		router.With(middleware.RequireRoleOrScope(
			[]string{middleware.RoleAdmin, middleware.RoleReadonly}, nil,
		)).Get("/ui/forms", h.Forms.HandleForms)
	}

	contract.HandlerWithOptions(h.API, contract.ChiServerOptions{
		BaseRouter:           router,
		OperationMiddlewares: OperationAccess,
	})

	return router
}

// operationAccess — роли и scopes, дающие доступ к операции.
var operationAccess = map[string]struct {
	roles  []string
	scopes []string
}{
	contract.OpSignLink:           {[]string{middleware.RoleAdmin}, []string{middleware.ScopeLinksSign}},
	contract.OpUploadRules:        {[]string{middleware.RoleAdmin}, []string{middleware.ScopeLinksSign}},
	contract.OpAuthorizeDownload:  {[]string{middleware.RoleAdmin}, []string{middleware.ScopeDownloadsAuthorize}},
	contract.OpRequireLogin:       {[]string{middleware.RoleAdmin}, []string{middleware.ScopeDownloadsAuthorize}},
	contract.OpListFormSettings:   {[]string{middleware.RoleAdmin, middleware.RoleReadonly}, []string{middleware.ScopeSettingsRead}},
	contract.OpGetFormSettings:    {[]string{middleware.RoleAdmin, middleware.RoleReadonly}, []string{middleware.ScopeSettingsRead}},
	contract.OpUpdateFormSettings: {[]string{middleware.RoleAdmin}, []string{middleware.ScopeSettingsWrite}},
}

// OperationAccess возвращает RBAC middleware для operationId.
// Неизвестная операция доступна только admin.
func OperationAccess(operationID string) []contract.MiddlewareFunc {
	access, ok := operationAccess[operationID]
	if !ok {
		return []contract.MiddlewareFunc{middleware.RequireRoleOrScope([]string{middleware.RoleAdmin}, nil)}
	}
	return []contract.MiddlewareFunc{middleware.RequireRoleOrScope(access.roles, access.scopes)}
}

// JWTAuthWithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func JWTAuthWithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		protected := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
