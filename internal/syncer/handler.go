package syncer

import (
	"net/http"

	"github.com/bissquit/incident-radar/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the scheduler over HTTP.
type Handler struct {
	scheduler *Scheduler
}

// NewHandler creates a new sync handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// RegisterRoutes registers public routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sync/status", h.GetStatus)
}

// RegisterAdminRoutes registers routes that require the admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/sync", h.TriggerSync)
}

// TriggerSyncResponse reports whether the trigger started a run.
type TriggerSyncResponse struct {
	Started bool `json:"started"`
}

// TriggerSync handles POST /api/v1/admin/sync.
// The run happens in the background; the request never waits for it.
func (h *Handler) TriggerSync(w http.ResponseWriter, _ *http.Request) {
	started := h.scheduler.TriggerSync(TriggerManual)
	httputil.Success(w, http.StatusAccepted, TriggerSyncResponse{Started: started})
}

// GetStatus handles GET /api/v1/sync/status.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.scheduler.Status())
}
