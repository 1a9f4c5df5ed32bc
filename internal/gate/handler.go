package gate

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/httprate"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/transport"
)

type ServiceAPI interface {
	ListAccessibleModules(ctx context.Context, caller *internal.Identity) ([]module.ModuleResponse, error)
	GetModule(ctx context.Context, caller *internal.Identity, moduleID string) (*module.ModuleResponse, error)
	ExecuteModule(ctx context.Context, caller *internal.Identity, moduleID string, raw map[string]interface{}) *Result
}

type Handler struct {
	*transport.BaseHandler
	Service      ServiceAPI
	exposeStderr bool
	rateLimit    func(http.Handler) http.Handler
}

// NewHandler builds the caller-facing module endpoints. executePerMinute
// bounds executions per user; zero disables the limit.
func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI, exposeStderr bool, executePerMinute int) *Handler {
	h := &Handler{
		BaseHandler:  baseHandler,
		Service:      svc,
		exposeStderr: exposeStderr,
	}
	if executePerMinute > 0 {
		h.rateLimit = httprate.Limit(executePerMinute, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				h.WriteError(w, http.StatusTooManyRequests, "too many executions, slow down")
			}),
		)
	}
	return h
}

// MountRoutes registers the module routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/modules", h.ListModules)
	r.Get("/modules/{id}", h.GetModule)
	r.Group(func(gr chi.Router) {
		if h.rateLimit != nil {
			gr.Use(h.rateLimit)
		}
		gr.Post("/modules/{id}/execute", h.ExecuteModule)
	})
}

func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	caller, _ := internal.IdentityFromContext(r.Context())
	modules, err := h.Service.ListAccessibleModules(r.Context(), caller)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, module.ModulesResponse{Modules: modules})
}

func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	caller, _ := internal.IdentityFromContext(r.Context())
	m, err := h.Service.GetModule(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) ExecuteModule(w http.ResponseWriter, r *http.Request) {
	caller, ok := internal.IdentityFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ExecuteRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	res := h.Service.ExecuteModule(r.Context(), caller, chi.URLParam(r, "id"), req.Parameters)
	if !h.exposeStderr && !caller.IsAdmin() {
		res.Redact()
	}
	h.WriteJSON(w, statusCode(res.Status), res)
}

func statusCode(s Status) int {
	switch s {
	case StatusSucceeded:
		return http.StatusOK
	case StatusDenied:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusInvalidParameters:
		return http.StatusBadRequest
	case StatusTimedOut:
		return http.StatusGatewayTimeout
	case StatusFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func rateLimitKey(r *http.Request) (string, error) {
	if caller, ok := internal.IdentityFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(caller.UserID, 10), nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}
