package execution

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/transport"
)

type ServiceAPI interface {
	ListRecent(ctx context.Context, filter ListFilter) ([]*Record, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

// ListExecutions handles GET /admin/executions?module=&user_id=&limit=
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{ModuleID: module.NormalizeID(q.Get("module"))}

	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = id
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	records, err := h.Service.ListRecent(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RecordsResponse{Executions: records})
}
