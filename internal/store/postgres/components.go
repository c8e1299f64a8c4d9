package postgres

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/google/uuid"
)

// UpsertComponent inserts or merges a component keyed on (data_source_id, external_id).
func (r *Repository) UpsertComponent(ctx context.Context, component *domain.ServiceComponent) error {
	query := `
		INSERT INTO service_components (
			external_id, data_source_id, name, status, group_name, position, updated_at, synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), NOW())
		ON CONFLICT (data_source_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			group_name = EXCLUDED.group_name,
			position = EXCLUDED.position,
			updated_at = EXCLUDED.updated_at,
			synced_at = NOW()
		RETURNING id, updated_at, created_at, synced_at
	`
	var updatedAt any
	if !component.UpdatedAt.IsZero() {
		updatedAt = component.UpdatedAt
	}

	err := r.db.QueryRow(ctx, query,
		component.ExternalID,
		component.DataSourceID,
		component.Name,
		component.Status,
		component.Group,
		component.Position,
		updatedAt,
	).Scan(&component.ID, &component.UpdatedAt, &component.CreatedAt, &component.SyncedAt)

	if err != nil {
		return fmt.Errorf("upsert component: %w", err)
	}
	return nil
}

// ListComponents returns components ordered by source, group and position.
func (r *Repository) ListComponents(ctx context.Context, filter store.ComponentFilter) ([]domain.ServiceComponent, error) {
	query := `
		SELECT id, external_id, data_source_id, name, status, group_name, position,
			updated_at, created_at, synced_at
		FROM service_components
		WHERE 1=1
	`
	var args []any
	if filter.DataSourceID != "" {
		if uuid.Validate(filter.DataSourceID) != nil {
			return []domain.ServiceComponent{}, nil
		}
		query += " AND data_source_id = $1"
		args = append(args, filter.DataSourceID)
	}
	query += " ORDER BY data_source_id, group_name, position, name"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	components := make([]domain.ServiceComponent, 0)
	for rows.Next() {
		var c domain.ServiceComponent
		err := rows.Scan(
			&c.ID,
			&c.ExternalID,
			&c.DataSourceID,
			&c.Name,
			&c.Status,
			&c.Group,
			&c.Position,
			&c.UpdatedAt,
			&c.CreatedAt,
			&c.SyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		components = append(components, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}

	return components, nil
}

// UpsertMetric inserts or overwrites the metric for (date, data_source_id).
func (r *Repository) UpsertMetric(ctx context.Context, metric *domain.DailyMetric) error {
	query := `
		INSERT INTO daily_metrics (
			date, data_source_id, incident_count, open_incident_count, resolved_incident_count,
			component_count, degraded_components, mean_time_to_resolve_secs, synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (date, data_source_id) DO UPDATE SET
			incident_count = EXCLUDED.incident_count,
			open_incident_count = EXCLUDED.open_incident_count,
			resolved_incident_count = EXCLUDED.resolved_incident_count,
			component_count = EXCLUDED.component_count,
			degraded_components = EXCLUDED.degraded_components,
			mean_time_to_resolve_secs = EXCLUDED.mean_time_to_resolve_secs,
			synced_at = NOW()
		RETURNING synced_at
	`
	metric.Date = domain.MetricDate(metric.Date)

	err := r.db.QueryRow(ctx, query,
		metric.Date,
		metric.DataSourceID,
		metric.IncidentCount,
		metric.OpenIncidentCount,
		metric.ResolvedIncidentCount,
		metric.ComponentCount,
		metric.DegradedComponents,
		metric.MeanTimeToResolveSecs,
	).Scan(&metric.SyncedAt)

	if err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}
	return nil
}

// ListMetrics returns daily metrics, newest day first.
func (r *Repository) ListMetrics(ctx context.Context, filter store.MetricFilter) ([]domain.DailyMetric, error) {
	query := `
		SELECT date, data_source_id, incident_count, open_incident_count, resolved_incident_count,
			component_count, degraded_components, mean_time_to_resolve_secs, synced_at
		FROM daily_metrics
		WHERE 1=1
	`
	var args []any
	argNum := 1

	if filter.DataSourceID != "" {
		if uuid.Validate(filter.DataSourceID) != nil {
			return []domain.DailyMetric{}, nil
		}
		query += fmt.Sprintf(" AND data_source_id = $%d", argNum)
		args = append(args, filter.DataSourceID)
		argNum++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND date >= $%d", argNum)
		args = append(args, domain.MetricDate(filter.From))
		argNum++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND date <= $%d", argNum)
		args = append(args, domain.MetricDate(filter.To))
	}
	query += " ORDER BY date DESC, data_source_id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]domain.DailyMetric, 0)
	for rows.Next() {
		var m domain.DailyMetric
		err := rows.Scan(
			&m.Date,
			&m.DataSourceID,
			&m.IncidentCount,
			&m.OpenIncidentCount,
			&m.ResolvedIncidentCount,
			&m.ComponentCount,
			&m.DegradedComponents,
			&m.MeanTimeToResolveSecs,
			&m.SyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}

	return metrics, nil
}
