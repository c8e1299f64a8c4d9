// Package datasources manages the configured vendor endpoints.
package datasources

import (
	"context"
	"fmt"
	"sync"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/store"
)

// Repository is the data source part of store.Repository.
type Repository interface {
	ListDataSources(ctx context.Context) ([]domain.DataSource, error)
	GetDataSource(ctx context.Context, id string) (*domain.DataSource, error)
	CreateDataSource(ctx context.Context, ds *domain.DataSource) error
	UpdateDataSource(ctx context.Context, ds *domain.DataSource) error
	EnsureDataSource(ctx context.Context, ds *domain.DataSource) (bool, error)
}

// Service implements data source management.
type Service struct {
	repo Repository

	mu       sync.RWMutex
	onChange []func(ctx context.Context)
}

// NewService creates a new data source service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// OnChange registers fn to be called after a data source is created, updated or provisioned.
func (s *Service) OnChange(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Service) changed(ctx context.Context) {
	s.mu.RLock()
	hooks := s.onChange
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}

// CreateInput holds data for creating a data source.
type CreateInput struct {
	Name     string
	Type     domain.ConnectorType
	BaseURL  string
	APIKey   string
	IsActive bool
}

// UpdateInput holds the fields to change; nil fields are left as they are.
type UpdateInput struct {
	Name     *string
	Type     *domain.ConnectorType
	BaseURL  *string
	APIKey   *string
	IsActive *bool
}

// List returns every data source.
func (s *Service) List(ctx context.Context) ([]domain.DataSource, error) {
	list, err := s.repo.ListDataSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list data sources: %w", err)
	}
	return list, nil
}

// Get returns a data source by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.DataSource, error) {
	ds, err := s.repo.GetDataSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get data source: %w", err)
	}
	return ds, nil
}

// Create stores a new data source. It becomes eligible for the next sync run.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.DataSource, error) {
	ds := &domain.DataSource{
		Name:     input.Name,
		Type:     input.Type,
		BaseURL:  input.BaseURL,
		APIKey:   input.APIKey,
		IsActive: input.IsActive,
	}
	if err := s.repo.CreateDataSource(ctx, ds); err != nil {
		return nil, fmt.Errorf("create data source: %w", err)
	}
	s.changed(ctx)
	return ds, nil
}

// Update changes the configuration of a data source. Sync bookkeeping is never touched.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.DataSource, error) {
	ds, err := s.repo.GetDataSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get data source: %w", err)
	}

	if input.Name != nil {
		ds.Name = *input.Name
	}
	if input.Type != nil {
		ds.Type = *input.Type
	}
	if input.BaseURL != nil {
		ds.BaseURL = *input.BaseURL
	}
	if input.APIKey != nil {
		ds.APIKey = *input.APIKey
	}
	if input.IsActive != nil {
		ds.IsActive = *input.IsActive
	}

	if err := s.repo.UpdateDataSource(ctx, ds); err != nil {
		return nil, fmt.Errorf("update data source: %w", err)
	}
	s.changed(ctx)
	return ds, nil
}

// EnsureConfigured reconciles statically configured data sources by name.
// Connector types are not checked here: an unsupported type fails at sync time.
func (s *Service) EnsureConfigured(ctx context.Context, configured []domain.DataSource) error {
	logger := ctxlog.FromContext(ctx)
	for i := range configured {
		ds := configured[i]
		created, err := s.repo.EnsureDataSource(ctx, &ds)
		if err != nil {
			return fmt.Errorf("ensure data source %q: %w", ds.Name, err)
		}
		logger.Info("data source provisioned",
			"data_source_id", ds.ID,
			"data_source", ds.Name,
			"connector", ds.Type,
			"created", created,
			"active", ds.IsActive,
		)
	}
	s.changed(ctx)
	return nil
}

var _ Repository = (store.Repository)(nil)
