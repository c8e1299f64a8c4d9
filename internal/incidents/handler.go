package incidents

import (
	"net/http"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/httputil"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/go-chi/chi/v5"
)

// dateLayout is the format of the from/to query parameters of the metrics endpoint.
const dateLayout = "2006-01-02"

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
}

// Handler serves the public read API.
type Handler struct {
	service *Service
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers public routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Get("/active", h.ListActiveIncidents)
		r.Get("/{id}", h.GetIncident)
		r.Get("/{id}/updates", h.ListUpdates)
	})
	r.Get("/components", h.ListComponents)
	r.Get("/metrics/daily", h.ListDailyMetrics)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	h.listIncidents(w, r, false)
}

// ListActiveIncidents handles GET /incidents/active.
func (h *Handler) ListActiveIncidents(w http.ResponseWriter, r *http.Request) {
	h.listIncidents(w, r, true)
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	filter, err := parseIncidentFilter(r)
	if err != nil {
		httputil.ValidationError(w, err)
		return
	}
	filter.ActiveOnly = activeOnly

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.List(w, list, httputil.Page{
		Limit:  store.NormalizeLimit(filter.Limit),
		Offset: filter.Offset,
		Count:  len(list),
	})
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// ListUpdates handles GET /incidents/{id}/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ListUpdates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, updates)
}

// ListComponents handles GET /components.
func (h *Handler) ListComponents(w http.ResponseWriter, r *http.Request) {
	components, err := h.service.ListComponents(r.Context(), store.ComponentFilter{
		DataSourceID: r.URL.Query().Get("data_source_id"),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, components)
}

// ListDailyMetrics handles GET /metrics/daily.
func (h *Handler) ListDailyMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MetricFilter{DataSourceID: q.Get("data_source_id")}

	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httputil.ValidationError(w, fieldError(name+" must be a date (YYYY-MM-DD)"))
			return
		}
		*dst = t
	}

	list, err := h.service.ListDailyMetrics(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

func parseIncidentFilter(r *http.Request) (store.IncidentFilter, error) {
	q := r.URL.Query()
	filter := store.IncidentFilter{DataSourceID: q.Get("data_source_id")}

	if raw := q.Get("status"); raw != "" {
		status := domain.IncidentStatus(raw)
		if !status.IsValid() {
			return filter, fieldError("status must be one of investigating, identified, monitoring, resolved")
		}
		filter.Status = &status
	}
	if raw := q.Get("severity"); raw != "" {
		severity := domain.Severity(raw)
		if !severity.IsValid() {
			return filter, fieldError("severity must be one of critical, high, medium, low")
		}
		filter.Severity = &severity
	}

	var err error
	if filter.Limit, err = httputil.QueryInt(r, "limit", store.DefaultLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.QueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

type fieldError string

func (e fieldError) Error() string { return string(e) }
