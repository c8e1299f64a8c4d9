// Package gcp implements the connector for the Google Cloud status dashboard feed.
//
// The feed is a bare JSON array whose shape has drifted over the years, so it is read
// field by field with gjson instead of being bound to structs.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	vendor = "gcp"

	incidentsPath = "/incidents.json"
	productsPath  = "/products.json"
)

var errNotArray = errors.New("incidents feed is not a JSON array")

// Connector reads the Google Cloud status feed.
type Connector struct {
	dataSourceID string
	client       *connectors.Client
}

// New creates a connector bound to ds.
func New(ds domain.DataSource, opts connectors.Options) *Connector {
	return &Connector{
		dataSourceID: ds.ID,
		client: connectors.NewClient(connectors.ClientConfig{
			BaseURL:           ds.BaseURL,
			UserAgent:         opts.UserAgent,
			RequestsPerSecond: opts.RequestsPerSecond,
		}),
	}
}

// FetchIncidents returns every incident in the feed with its embedded update history.
func (c *Connector) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	var incidents []domain.Incident
	var parseErr error
	feed.ForEach(func(_, item gjson.Result) bool {
		inc, err := c.toIncident(item)
		if err != nil {
			parseErr = err
			return false
		}
		incidents = append(incidents, inc)
		return true
	})
	if parseErr != nil {
		return nil, connectors.NewError(connectors.KindParse, "fetch gcp incidents", parseErr)
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	return incidents, nil
}

// FetchComponents returns one component per product. A product's status is the worst
// impact among open incidents that affect it.
func (c *Connector) FetchComponents(ctx context.Context) ([]domain.ServiceComponent, error) {
	body, err := c.client.Get(ctx, productsPath)
	if err != nil {
		return nil, fmt.Errorf("fetch gcp products: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, connectors.NewError(connectors.KindParse, "fetch gcp products", errors.New("invalid JSON"))
	}

	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]domain.ComponentStatus)
	feed.ForEach(func(_, item gjson.Result) bool {
		if item.Get("end").String() != "" {
			return true
		}
		status := mapComponentStatus(item.Get("status_impact").String())
		for _, product := range item.Get("affected_products").Array() {
			id := product.Get("id").String()
			if current, ok := statuses[id]; !ok || worse(status, current) {
				statuses[id] = status
			}
		}
		return true
	})

	var components []domain.ServiceComponent
	for i, product := range gjson.GetBytes(body, "products").Array() {
		id := product.Get("id").String()
		if id == "" {
			continue
		}
		status, ok := statuses[id]
		if !ok {
			status = domain.ComponentStatusOperational
		}
		components = append(components, domain.ServiceComponent{
			ExternalID:   id,
			DataSourceID: c.dataSourceID,
			Name:         product.Get("title").String(),
			Status:       status,
			Group:        "Google Cloud",
			Position:     i,
		})
	}
	if components == nil {
		components = []domain.ServiceComponent{}
	}
	return components, nil
}

// FetchIncidentUpdates filters the feed down to one incident.
func (c *Connector) FetchIncidentUpdates(ctx context.Context, externalIncidentID string) ([]domain.IncidentUpdate, error) {
	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	for _, item := range feed.Array() {
		if item.Get("id").String() != externalIncidentID {
			continue
		}
		updates, err := c.toUpdates(externalIncidentID, item.Get("updates"))
		if err != nil {
			return nil, connectors.NewError(connectors.KindParse, "fetch gcp incident updates", err)
		}
		return updates, nil
	}
	return []domain.IncidentUpdate{}, nil
}

func (c *Connector) fetchFeed(ctx context.Context) (gjson.Result, error) {
	body, err := c.client.Get(ctx, incidentsPath)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("fetch gcp incidents: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, connectors.NewError(connectors.KindParse, "fetch gcp incidents", errors.New("invalid JSON"))
	}

	feed := gjson.ParseBytes(body)
	if !feed.IsArray() {
		return gjson.Result{}, connectors.NewError(connectors.KindParse, "fetch gcp incidents", errNotArray)
	}
	return feed, nil
}

func (c *Connector) toIncident(item gjson.Result) (domain.Incident, error) {
	id := item.Get("id").String()
	if id == "" {
		return domain.Incident{}, errors.New("incident without id")
	}

	begin, err := parseTime(item.Get("begin"))
	if err != nil {
		return domain.Incident{}, err
	}
	modified, err := parseTime(item.Get("modified"))
	if err != nil {
		return domain.Incident{}, err
	}
	end, err := parseTime(item.Get("end"))
	if err != nil {
		return domain.Incident{}, err
	}

	rawStatus := item.Get("most_recent_update.status").String()
	impact := item.Get("status_impact").String()

	inc := domain.Incident{
		ExternalID:       id,
		DataSourceID:     c.dataSourceID,
		Title:            item.Get("external_desc").String(),
		Description:      item.Get("most_recent_update.text").String(),
		Status:           c.MapStatus(rawStatus),
		Impact:           impact,
		StartedAt:        begin,
		UpdatedAt:        modified,
		AffectedServices: []string{},
		Tags:             []string{vendor},
		Metadata: map[string]any{
			connectors.MetadataRawStatus: rawStatus,
			"vendor":                     vendor,
		},
	}

	if !end.IsZero() {
		inc.Status = domain.IncidentStatusResolved
		inc.ResolvedAt = &end
	}

	if connectors.Normalize(impact) == "service_outage" {
		inc.Severity = domain.SeverityCritical
	} else {
		inc.Severity = c.MapSeverity(item.Get("severity").String())
	}

	for _, product := range item.Get("affected_products").Array() {
		inc.AffectedServices = append(inc.AffectedServices, product.Get("title").String())
	}
	if name := item.Get("service_name").String(); name != "" && len(inc.AffectedServices) == 0 {
		inc.AffectedServices = append(inc.AffectedServices, name)
	}
	if uri := item.Get("uri").String(); uri != "" {
		inc.Metadata["uri"] = uri
	}
	if number := item.Get("number").String(); number != "" {
		inc.Metadata["number"] = number
	}

	updates, err := c.toUpdates(id, item.Get("updates"))
	if err != nil {
		return domain.Incident{}, err
	}
	inc.Updates = updates

	return inc, nil
}

func (c *Connector) toUpdates(incidentID string, raw gjson.Result) ([]domain.IncidentUpdate, error) {
	updates := make([]domain.IncidentUpdate, 0, len(raw.Array()))
	for _, u := range raw.Array() {
		created, err := parseTime(u.Get("created"))
		if err != nil {
			return nil, err
		}
		text := u.Get("text").String()
		updates = append(updates, domain.IncidentUpdate{
			ExternalID: connectors.StableID(incidentID, u.Get("created").String(), text),
			Status:     c.MapStatus(u.Get("status").String()),
			Message:    text,
			CreatedAt:  created,
		})
	}
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].CreatedAt.After(updates[j].CreatedAt)
	})
	return updates, nil
}

func parseTime(r gjson.Result) (time.Time, error) {
	s := r.String()
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
