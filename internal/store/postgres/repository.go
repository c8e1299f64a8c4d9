// Package postgres provides the PostgreSQL implementation of store.Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository implements store.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

const dataSourceColumns = `
	id, name, type, base_url, api_key, is_active, last_sync_at, last_attempt_at,
	last_error, last_error_kind, retry_count, created_at, updated_at`

func scanDataSource(row pgx.Row) (domain.DataSource, error) {
	var ds domain.DataSource
	err := row.Scan(
		&ds.ID,
		&ds.Name,
		&ds.Type,
		&ds.BaseURL,
		&ds.APIKey,
		&ds.IsActive,
		&ds.LastSyncAt,
		&ds.LastAttemptAt,
		&ds.LastError,
		&ds.LastErrorKind,
		&ds.RetryCount,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	return ds, err
}

// ListActiveDataSources returns data sources eligible for syncing.
func (r *Repository) ListActiveDataSources(ctx context.Context) ([]domain.DataSource, error) {
	return r.listDataSources(ctx, `SELECT`+dataSourceColumns+` FROM data_sources WHERE is_active ORDER BY name`)
}

// ListDataSources returns all data sources.
func (r *Repository) ListDataSources(ctx context.Context) ([]domain.DataSource, error) {
	return r.listDataSources(ctx, `SELECT`+dataSourceColumns+` FROM data_sources ORDER BY name`)
}

func (r *Repository) listDataSources(ctx context.Context, query string) ([]domain.DataSource, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list data sources: %w", err)
	}
	defer rows.Close()

	sources := make([]domain.DataSource, 0)
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data source: %w", err)
		}
		sources = append(sources, ds)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data sources: %w", err)
	}

	return sources, nil
}

// GetDataSource retrieves a data source by id.
func (r *Repository) GetDataSource(ctx context.Context, id string) (*domain.DataSource, error) {
	if uuid.Validate(id) != nil {
		return nil, store.ErrDataSourceNotFound
	}

	ds, err := scanDataSource(r.db.QueryRow(ctx, `SELECT`+dataSourceColumns+` FROM data_sources WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrDataSourceNotFound
		}
		return nil, fmt.Errorf("get data source: %w", err)
	}
	return &ds, nil
}

// CreateDataSource inserts a new data source.
func (r *Repository) CreateDataSource(ctx context.Context, ds *domain.DataSource) error {
	query := `
		INSERT INTO data_sources (name, type, base_url, api_key, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, retry_count, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		ds.Name,
		ds.Type,
		ds.BaseURL,
		ds.APIKey,
		ds.IsActive,
	).Scan(&ds.ID, &ds.RetryCount, &ds.CreatedAt, &ds.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDataSourceExists
		}
		return fmt.Errorf("create data source: %w", err)
	}
	return nil
}

// UpdateDataSource overwrites the configuration fields of a data source.
func (r *Repository) UpdateDataSource(ctx context.Context, ds *domain.DataSource) error {
	if uuid.Validate(ds.ID) != nil {
		return store.ErrDataSourceNotFound
	}

	query := `
		UPDATE data_sources
		SET name = $2, type = $3, base_url = $4, api_key = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING` + dataSourceColumns

	updated, err := scanDataSource(r.db.QueryRow(ctx, query,
		ds.ID,
		ds.Name,
		ds.Type,
		ds.BaseURL,
		ds.APIKey,
		ds.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrDataSourceNotFound
		}
		if isUniqueViolation(err) {
			return store.ErrDataSourceExists
		}
		return fmt.Errorf("update data source: %w", err)
	}

	*ds = updated
	return nil
}

// EnsureDataSource upserts a data source by name. Sync bookkeeping columns are not touched.
func (r *Repository) EnsureDataSource(ctx context.Context, ds *domain.DataSource) (bool, error) {
	query := `
		INSERT INTO data_sources (name, type, base_url, api_key, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			base_url = EXCLUDED.base_url,
			api_key = EXCLUDED.api_key,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, retry_count, created_at, updated_at, (xmax = 0) AS inserted
	`
	var created bool
	err := r.db.QueryRow(ctx, query,
		ds.Name,
		ds.Type,
		ds.BaseURL,
		ds.APIKey,
		ds.IsActive,
	).Scan(&ds.ID, &ds.RetryCount, &ds.CreatedAt, &ds.UpdatedAt, &created)

	if err != nil {
		return false, fmt.Errorf("ensure data source: %w", err)
	}
	return created, nil
}

// RecordSyncOutcome stamps the result of one attempt in a single statement.
func (r *Repository) RecordSyncOutcome(ctx context.Context, dataSourceID string, at time.Time, failure *store.SyncFailure) (int, error) {
	if uuid.Validate(dataSourceID) != nil {
		return 0, store.ErrDataSourceNotFound
	}

	var query string
	args := []any{dataSourceID, at}
	if failure == nil {
		query = `
			UPDATE data_sources
			SET last_sync_at = $2, last_attempt_at = $2, last_error = NULL, last_error_kind = NULL,
				retry_count = 0, updated_at = NOW()
			WHERE id = $1
			RETURNING retry_count
		`
	} else {
		query = `
			UPDATE data_sources
			SET last_attempt_at = $2, last_error = $3, last_error_kind = $4,
				retry_count = retry_count + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING retry_count
		`
		args = append(args, failure.Message, failure.Kind)
	}

	var retryCount int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&retryCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrDataSourceNotFound
		}
		return 0, fmt.Errorf("record sync outcome: %w", err)
	}
	return retryCount, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
