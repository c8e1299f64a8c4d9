// Package cachet implements the connector for Cachet v1 status pages.
package cachet

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
)

const (
	vendor   = "cachet"
	perPage  = 100
	maxPages = 10
)

// Connector reads one Cachet installation.
type Connector struct {
	dataSourceID string
	client       *connectors.Client
}

// New creates a connector bound to ds. A configured API key is sent as X-Cachet-Token.
func New(ds domain.DataSource, opts connectors.Options) *Connector {
	headers := map[string]string{}
	if ds.APIKey != "" {
		headers["X-Cachet-Token"] = ds.APIKey
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

// FetchIncidents walks up to maxPages pages of /api/v1/incidents.
// Updates are left nil: Cachet lists them on a separate endpoint.
func (c *Connector) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	var payloads []incidentPayload
	for page := 1; page <= maxPages; page++ {
		var resp incidentsResponse
		path := fmt.Sprintf("/api/v1/incidents?page=%d&per_page=%d&sort=id&order=desc", page, perPage)
		if err := c.client.GetJSON(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("fetch cachet incidents: %w", err)
		}
		payloads = append(payloads, resp.Data...)

		if resp.Meta.Pagination == nil || int(resp.Meta.Pagination.TotalPages) <= page {
			break
		}
	}

	componentStatus, err := c.componentStatuses(ctx, payloads)
	if err != nil {
		return nil, err
	}

	incidents := make([]domain.Incident, 0, len(payloads))
	for _, p := range payloads {
		if p.ID == 0 {
			return nil, connectors.NewError(connectors.KindParse, "fetch cachet incidents",
				fmt.Errorf("incident without id: %q", p.Name))
		}
		incidents = append(incidents, c.toIncident(p, componentStatus))
	}
	return incidents, nil
}

// componentStatuses resolves component status for incidents that reference a component
// without carrying its status inline. The components endpoint is only called when needed.
func (c *Connector) componentStatuses(ctx context.Context, payloads []incidentPayload) (map[flexInt]componentPayload, error) {
	needed := false
	for _, p := range payloads {
		if p.ComponentID != 0 && p.ComponentStatus == 0 {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	components, err := c.listComponents(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[flexInt]componentPayload, len(components))
	for _, comp := range components {
		byID[comp.ID] = comp
	}
	return byID, nil
}

// FetchComponents returns every component, labelled with its group name.
func (c *Connector) FetchComponents(ctx context.Context) ([]domain.ServiceComponent, error) {
	payloads, err := c.listComponents(ctx)
	if err != nil {
		return nil, err
	}

	var groups groupsResponse
	if err := c.client.GetJSON(ctx, "/api/v1/components/groups", &groups); err != nil {
		return nil, fmt.Errorf("fetch cachet component groups: %w", err)
	}
	groupNames := make(map[flexInt]string, len(groups.Data))
	for _, g := range groups.Data {
		groupNames[g.ID] = g.Name
	}

	components := make([]domain.ServiceComponent, 0, len(payloads))
	for _, p := range payloads {
		if p.Enabled != nil && !*p.Enabled {
			continue
		}
		components = append(components, domain.ServiceComponent{
			ExternalID:   p.ID.String(),
			DataSourceID: c.dataSourceID,
			Name:         p.Name,
			Status:       mapComponentStatus(p.Status),
			Group:        groupNames[p.GroupID],
			Position:     int(p.Order),
			UpdatedAt:    p.UpdatedAt.Time,
		})
	}
	return components, nil
}

// FetchIncidentUpdates returns the timeline of one incident.
func (c *Connector) FetchIncidentUpdates(ctx context.Context, externalIncidentID string) ([]domain.IncidentUpdate, error) {
	var resp updatesResponse
	path := "/api/v1/incidents/" + url.PathEscape(externalIncidentID) + "/updates"
	if err := c.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch cachet incident updates: %w", err)
	}

	updates := make([]domain.IncidentUpdate, 0, len(resp.Data))
	for _, u := range resp.Data {
		updates = append(updates, domain.IncidentUpdate{
			ExternalID: u.ID.String(),
			Status:     c.MapStatus(u.Status.String()),
			Message:    u.Message,
			CreatedAt:  u.CreatedAt.Time,
		})
	}
	return updates, nil
}

func (c *Connector) listComponents(ctx context.Context) ([]componentPayload, error) {
	var all []componentPayload
	for page := 1; page <= maxPages; page++ {
		var resp componentsResponse
		path := "/api/v1/components?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
		if err := c.client.GetJSON(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("fetch cachet components: %w", err)
		}
		all = append(all, resp.Data...)

		if resp.Meta.Pagination == nil || int(resp.Meta.Pagination.TotalPages) <= page {
			break
		}
	}
	return all, nil
}

func (c *Connector) toIncident(p incidentPayload, components map[flexInt]componentPayload) domain.Incident {
	rawStatus := p.Status.String()
	inc := domain.Incident{
		ExternalID:       p.ID.String(),
		DataSourceID:     c.dataSourceID,
		Title:            p.Name,
		Description:      p.Message,
		Status:           c.MapStatus(rawStatus),
		StartedAt:        p.OccurredAt.Time,
		UpdatedAt:        p.UpdatedAt.Time,
		AffectedServices: []string{},
		Tags:             []string{vendor},
		Metadata: map[string]any{
			connectors.MetadataRawStatus: rawStatus,
			"vendor":                     vendor,
		},
	}
	if inc.StartedAt.IsZero() {
		inc.StartedAt = p.CreatedAt.Time
	}
	if p.HumanStatus != "" {
		inc.Metadata["human_status"] = p.HumanStatus
	}
	if p.Permalink != "" {
		inc.Metadata["permalink"] = p.Permalink
	}

	componentStatus := p.ComponentStatus
	if comp, ok := components[p.ComponentID]; ok {
		inc.AffectedServices = append(inc.AffectedServices, comp.Name)
		if componentStatus == 0 {
			componentStatus = comp.Status
		}
	}
	if componentStatus != 0 {
		inc.Impact = componentStatus.String()
	}
	inc.Severity = c.MapSeverity(inc.Impact)

	return inc
}
