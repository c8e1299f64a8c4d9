// Package statuspage implements the connector for Atlassian Statuspage v2 APIs.
package statuspage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
)

const vendor = "statuspage"

// Connector reads one Statuspage page.
type Connector struct {
	dataSourceID string
	client       *connectors.Client
}

// New creates a connector bound to ds. A configured API key is sent as an OAuth header.
func New(ds domain.DataSource, opts connectors.Options) *Connector {
	headers := map[string]string{}
	if ds.APIKey != "" {
		headers["Authorization"] = "OAuth " + ds.APIKey
	}

	return &Connector{
		dataSourceID: ds.ID,
		client: connectors.NewClient(connectors.ClientConfig{
			BaseURL:           ds.BaseURL,
			UserAgent:         opts.UserAgent,
			RequestsPerSecond: opts.RequestsPerSecond,
			Headers:           headers,
		}),
	}
}

type incidentsResponse struct {
	Incidents []incidentPayload `json:"incidents"`
}

type incidentResponse struct {
	Incident incidentPayload `json:"incident"`
}

type incidentPayload struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Status          string             `json:"status"`
	Impact          string             `json:"impact"`
	Shortlink       string             `json:"shortlink"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       *time.Time         `json:"updated_at"`
	StartedAt       *time.Time         `json:"started_at"`
	ResolvedAt      *time.Time         `json:"resolved_at"`
	IncidentUpdates []updatePayload    `json:"incident_updates"`
	Components      []componentPayload `json:"components"`
}

type updatePayload struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type componentsResponse struct {
	Components []componentPayload `json:"components"`
}

type componentPayload struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Position  int        `json:"position"`
	GroupID   *string    `json:"group_id"`
	Group     bool       `json:"group"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// FetchIncidents returns all incidents listed by /api/v2/incidents.json.
func (c *Connector) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	var resp incidentsResponse
	if err := c.client.GetJSON(ctx, "/api/v2/incidents.json", &resp); err != nil {
		return nil, fmt.Errorf("fetch statuspage incidents: %w", err)
	}

	incidents := make([]domain.Incident, 0, len(resp.Incidents))
	for _, p := range resp.Incidents {
		if p.ID == "" {
			return nil, connectors.NewError(connectors.KindParse, "fetch statuspage incidents",
				fmt.Errorf("incident without id: %q", p.Name))
		}
		incidents = append(incidents, c.toIncident(p))
	}
	return incidents, nil
}

// FetchComponents returns all non-group components, labelled with their group name.
func (c *Connector) FetchComponents(ctx context.Context) ([]domain.ServiceComponent, error) {
	var resp componentsResponse
	if err := c.client.GetJSON(ctx, "/api/v2/components.json", &resp); err != nil {
		return nil, fmt.Errorf("fetch statuspage components: %w", err)
	}

	groups := make(map[string]string)
	for _, p := range resp.Components {
		if p.Group {
			groups[p.ID] = p.Name
		}
	}

	components := make([]domain.ServiceComponent, 0, len(resp.Components))
	for _, p := range resp.Components {
		if p.Group {
			continue
		}
		component := domain.ServiceComponent{
			ExternalID:   p.ID,
			DataSourceID: c.dataSourceID,
			Name:         p.Name,
			Status:       mapComponentStatus(p.Status),
			Position:     p.Position,
		}
		if p.GroupID != nil {
			component.Group = groups[*p.GroupID]
		}
		if p.UpdatedAt != nil {
			component.UpdatedAt = *p.UpdatedAt
		}
		components = append(components, component)
	}
	return components, nil
}

// FetchIncidentUpdates returns the timeline of one incident.
func (c *Connector) FetchIncidentUpdates(ctx context.Context, externalIncidentID string) ([]domain.IncidentUpdate, error) {
	var resp incidentResponse
	path := "/api/v2/incidents/" + url.PathEscape(externalIncidentID) + ".json"
	if err := c.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch statuspage incident updates: %w", err)
	}
	return c.toUpdates(externalIncidentID, resp.Incident.IncidentUpdates), nil
}

func (c *Connector) toIncident(p incidentPayload) domain.Incident {
	inc := domain.Incident{
		ExternalID:       p.ID,
		DataSourceID:     c.dataSourceID,
		Title:            p.Name,
		Status:           c.MapStatus(p.Status),
		Severity:         c.MapSeverity(p.Impact),
		Impact:           p.Impact,
		StartedAt:        p.CreatedAt,
		ResolvedAt:       p.ResolvedAt,
		AffectedServices: make([]string, 0, len(p.Components)),
		Tags:             []string{vendor},
		Metadata: map[string]any{
			connectors.MetadataRawStatus: p.Status,
			"vendor":                     vendor,
		},
		Updates: c.toUpdates(p.ID, p.IncidentUpdates),
	}

	if p.StartedAt != nil {
		inc.StartedAt = *p.StartedAt
	}
	if p.UpdatedAt != nil {
		inc.UpdatedAt = *p.UpdatedAt
	}
	if p.Impact != "" {
		inc.Tags = append(inc.Tags, "impact:"+connectors.Normalize(p.Impact))
	}
	if p.Shortlink != "" {
		inc.Metadata["shortlink"] = p.Shortlink
	}
	for _, comp := range p.Components {
		inc.AffectedServices = append(inc.AffectedServices, comp.Name)
	}
	// Statuspage lists updates newest first.
	if len(p.IncidentUpdates) > 0 {
		inc.Description = p.IncidentUpdates[0].Body
	}

	return inc
}

func (c *Connector) toUpdates(incidentID string, payloads []updatePayload) []domain.IncidentUpdate {
	updates := make([]domain.IncidentUpdate, 0, len(payloads))
	for _, u := range payloads {
		externalID := u.ID
		if externalID == "" {
			externalID = connectors.StableID(incidentID, u.Status, u.Body, u.CreatedAt.UTC().Format(time.RFC3339Nano))
		}
		updates = append(updates, domain.IncidentUpdate{
			ExternalID: externalID,
			Status:     c.MapStatus(u.Status),
			Message:    u.Body,
			CreatedAt:  u.CreatedAt,
		})
	}
	return updates
}
