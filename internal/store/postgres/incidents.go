package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const incidentColumns = `
	i.id, i.external_id, i.data_source_id, i.title, i.description, i.status, i.severity, i.impact,
	i.started_at, i.resolved_at, i.updated_at, i.affected_services, i.tags, i.metadata,
	i.created_at, i.synced_at`

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.ExternalID,
		&inc.DataSourceID,
		&inc.Title,
		&inc.Description,
		&inc.Status,
		&inc.Severity,
		&inc.Impact,
		&inc.StartedAt,
		&inc.ResolvedAt,
		&inc.UpdatedAt,
		&inc.AffectedServices,
		&inc.Tags,
		&inc.Metadata,
		&inc.CreatedAt,
		&inc.SyncedAt,
	)
	return inc, err
}

// UpsertIncident inserts or merges an incident in one statement, keyed on
// (data_source_id, external_id).
func (r *Repository) UpsertIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			external_id, data_source_id, title, description, status, severity, impact,
			started_at, resolved_at, updated_at, affected_services, tags, metadata, synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (data_source_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			severity = EXCLUDED.severity,
			impact = EXCLUDED.impact,
			started_at = EXCLUDED.started_at,
			resolved_at = EXCLUDED.resolved_at,
			updated_at = EXCLUDED.updated_at,
			affected_services = EXCLUDED.affected_services,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			synced_at = NOW()
		RETURNING id, created_at, synced_at
	`
	metadata := incident.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	err := r.db.QueryRow(ctx, query,
		incident.ExternalID,
		incident.DataSourceID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Severity,
		incident.Impact,
		incident.StartedAt,
		incident.ResolvedAt,
		incident.UpdatedAt,
		nonNil(incident.AffectedServices),
		nonNil(incident.Tags),
		metadata,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.SyncedAt)

	if err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}
	return nil
}

// AppendIncidentUpdates inserts updates in one batch, skipping ones already stored.
func (r *Repository) AppendIncidentUpdates(ctx context.Context, incidentID string, updates []domain.IncidentUpdate) (int, error) {
	if uuid.Validate(incidentID) != nil {
		return 0, store.ErrIncidentNotFound
	}
	if len(updates) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO incident_updates (incident_id, external_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (incident_id, external_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(query, incidentID, u.ExternalID, u.Status, u.Message, u.CreatedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	inserted := 0
	for range updates {
		tag, err := results.Exec()
		if err != nil {
			if isForeignKeyViolation(err) {
				return inserted, store.ErrIncidentNotFound
			}
			return inserted, fmt.Errorf("append incident update: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListIncidents lists incidents of active data sources, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter store.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT` + incidentColumns + `
		FROM incidents i
		JOIN data_sources ds ON ds.id = i.data_source_id
		WHERE ds.is_active
	`
	var args []any
	argNum := 1

	if filter.ActiveOnly {
		query += fmt.Sprintf(" AND i.status <> '%s'", domain.IncidentStatusResolved)
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND i.status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Severity != nil {
		query += fmt.Sprintf(" AND i.severity = $%d", argNum)
		args = append(args, *filter.Severity)
		argNum++
	}
	if filter.DataSourceID != "" {
		if uuid.Validate(filter.DataSourceID) != nil {
			return []domain.Incident{}, nil
		}
		query += fmt.Sprintf(" AND i.data_source_id = $%d", argNum)
		args = append(args, filter.DataSourceID)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY i.started_at DESC, i.id LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, store.NormalizeLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return incidents, nil
}

// GetIncident retrieves an incident by id.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if uuid.Validate(id) != nil {
		return nil, store.ErrIncidentNotFound
	}

	inc, err := scanIncident(r.db.QueryRow(ctx, `SELECT`+incidentColumns+` FROM incidents i WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &inc, nil
}

// ListIncidentUpdates returns an incident's timeline, newest first.
func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	if _, err := r.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, incident_id, external_id, status, message, created_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	updates := make([]domain.IncidentUpdate, 0)
	for rows.Next() {
		var u domain.IncidentUpdate
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.ExternalID, &u.Status, &u.Message, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident updates: %w", err)
	}

	return updates, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
