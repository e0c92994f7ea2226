package contract

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/link-guard/internal/api/errors"
)

// operationId из openapi.yaml.
const (
	OpSignLink           = "signLink"
	OpAuthorizeDownload  = "authorizeDownload"
	OpRequireLogin       = "requireLogin"
	OpUploadRules        = "uploadRules"
	OpListFormSettings   = "listFormSettings"
	OpGetFormSettings    = "getFormSettings"
	OpUpdateFormSettings = "updateFormSettings"
)

// ServerInterface — операции контракта.
type ServerInterface interface {
	// (POST /api/v1/links/sign)
	SignLink(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/downloads/authorize)
	AuthorizeDownload(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/downloads/require-login)
	RequireLogin(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/upload-rules)
	UploadRules(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/forms/settings)
	ListFormSettings(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/forms/{form_id}/settings)
	GetFormSettings(w http.ResponseWriter, r *http.Request, formID FormID)
	// (PUT /api/v1/forms/{form_id}/settings)
	UpdateFormSettings(w http.ResponseWriter, r *http.Request, formID FormID)
}

// MiddlewareFunc — middleware отдельной операции.
type MiddlewareFunc func(http.Handler) http.Handler

// ChiServerOptions — параметры регистрации операций.
type ChiServerOptions struct {
	BaseRouter chi.Router
	// OperationMiddlewares возвращает middleware для operationId (RBAC).
	OperationMiddlewares func(operationID string) []MiddlewareFunc
	// ErrorHandlerFunc вызывается при ошибке разбора параметров.
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux регистрирует операции на существующем router без доп. middleware.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions регистрирует операции контракта.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			apierrors.ValidationError(w, err.Error())
		}
	}
	wrapper := &serverInterfaceWrapper{handler: si, errorHandlerFunc: options.ErrorHandlerFunc}

	route := func(method, pattern, operationID string, h http.HandlerFunc) {
		var handler http.Handler = h
		if options.OperationMiddlewares != nil {
			mws := options.OperationMiddlewares(operationID)
			for i := len(mws) - 1; i >= 0; i-- {
				handler = mws[i](handler)
			}
		}
		r.Method(method, pattern, handler)
	}

	route(http.MethodPost, "/api/v1/links/sign", OpSignLink, si.SignLink)
	route(http.MethodPost, "/api/v1/downloads/authorize", OpAuthorizeDownload, si.AuthorizeDownload)
	route(http.MethodPost, "/api/v1/downloads/require-login", OpRequireLogin, si.RequireLogin)
	route(http.MethodPost, "/api/v1/upload-rules", OpUploadRules, si.UploadRules)
	route(http.MethodGet, "/api/v1/forms/settings", OpListFormSettings, si.ListFormSettings)
	route(http.MethodGet, "/api/v1/forms/{form_id}/settings", OpGetFormSettings, wrapper.GetFormSettings)
	route(http.MethodPut, "/api/v1/forms/{form_id}/settings", OpUpdateFormSettings, wrapper.UpdateFormSettings)

	return r
}

// serverInterfaceWrapper разбирает path-параметры перед вызовом обработчика.
type serverInterfaceWrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (w *serverInterfaceWrapper) GetFormSettings(rw http.ResponseWriter, r *http.Request) {
	formID, err := bindFormID(r)
	if err != nil {
		w.errorHandlerFunc(rw, r, err)
		return
	}
	w.handler.GetFormSettings(rw, r, formID)
}

func (w *serverInterfaceWrapper) UpdateFormSettings(rw http.ResponseWriter, r *http.Request) {
	formID, err := bindFormID(r)
	if err != nil {
		w.errorHandlerFunc(rw, r, err)
		return
	}
	w.handler.UpdateFormSettings(rw, r, formID)
}

func bindFormID(r *http.Request) (FormID, error) {
	var formID FormID
	err := runtime.BindStyledParameterWithOptions("simple", "form_id", chi.URLParam(r, "form_id"), &formID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return 0, fmt.Errorf("некорректный параметр form_id: %w", err)
	}
	return formID, nil
}
