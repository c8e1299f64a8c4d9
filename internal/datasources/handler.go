package datasources

import (
	"net/http"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/httputil"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: store.ErrDataSourceNotFound, Status: http.StatusNotFound, Message: "data source not found"},
	{Error: store.ErrDataSourceExists, Status: http.StatusConflict, Message: "data source with this name already exists"},
	{Error: httputil.ErrInvalidBody, Status: http.StatusBadRequest, Message: "invalid json"},
}

// Handler handles HTTP requests for data sources.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new data source handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers public read routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/data-sources", h.List)
	r.Get("/data-sources/{id}", h.Get)
}

// RegisterAdminRoutes registers routes that require the admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/data-sources", h.Create)
	r.Patch("/data-sources/{id}", h.Update)
}

// CreateRequest is the body of POST /admin/data-sources.
type CreateRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=255"`
	Type     string `json:"type" validate:"required,oneof=statuspage cachet gcp"`
	BaseURL  string `json:"base_url" validate:"required,url,startswith=http"`
	APIKey   string `json:"api_key"`
	IsActive *bool  `json:"is_active"`
}

// UpdateRequest is the body of PATCH /admin/data-sources/{id}.
type UpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Type     *string `json:"type" validate:"omitempty,oneof=statuspage cachet gcp"`
	BaseURL  *string `json:"base_url" validate:"omitempty,url,startswith=http"`
	APIKey   *string `json:"api_key"`
	IsActive *bool   `json:"is_active"`
}

// List handles GET /data-sources.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// Get handles GET /data-sources/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ds, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, ds)
}

// Create handles POST /admin/data-sources.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	ds, err := h.service.Create(r.Context(), CreateInput{
		Name:     req.Name,
		Type:     domain.ConnectorType(req.Type),
		BaseURL:  req.BaseURL,
		APIKey:   req.APIKey,
		IsActive: isActive,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, ds)
}

// Update handles PATCH /admin/data-sources/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{
		Name:     req.Name,
		BaseURL:  req.BaseURL,
		APIKey:   req.APIKey,
		IsActive: req.IsActive,
	}
	if req.Type != nil {
		t := domain.ConnectorType(*req.Type)
		input.Type = &t
	}

	ds, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, ds)
}
