package module

import (
	"context"
	"net/http"

	"github.com/frahmantamala/scriptdeck/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	ListAll(ctx context.Context) ([]*Module, error)
	Get(ctx context.Context, id string) (*Module, error)
	Create(ctx context.Context, dto *CreateModuleDTO) (*Module, error)
	Update(ctx context.Context, id string, dto *UpdateModuleDTO) (*Module, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the administrative catalog endpoints. Ordinary callers
// reach modules through the gate handler instead.
type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.Service.ListAll(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if modules == nil {
		modules = []*Module{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"modules": modules})
}

func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) CreateModule(w http.ResponseWriter, r *http.Request) {
	var dto CreateModuleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	m, err := h.Service.Create(r.Context(), &dto)
	if err != nil {
		h.Logger.Warn("CreateModule: service error", "error", err, "module", dto.ID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	var dto UpdateModuleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	m, err := h.Service.Update(r.Context(), id, &dto)
	if err != nil {
		h.Logger.Warn("UpdateModule: service error", "error", err, "module", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
