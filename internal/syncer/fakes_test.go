package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
)

type fakeConnector struct {
	mu         sync.Mutex
	incidents  []domain.Incident
	components []domain.ServiceComponent
	updates    map[string][]domain.IncidentUpdate
	err        error
	panicMsg   string

	updateCalls atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	block       chan struct{}
}

func (f *fakeConnector) setIncidents(incidents ...domain.Incident) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents = incidents
}

func (f *fakeConnector) FetchIncidents(_ context.Context) ([]domain.Incident, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		current := f.maxInFlight.Load()
		if n <= current || f.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Incident, len(f.incidents))
	copy(out, f.incidents)
	return out, nil
}

func (f *fakeConnector) FetchComponents(_ context.Context) ([]domain.ServiceComponent, error) {
	out := make([]domain.ServiceComponent, len(f.components))
	copy(out, f.components)
	return out, nil
}

func (f *fakeConnector) FetchIncidentUpdates(_ context.Context, externalIncidentID string) ([]domain.IncidentUpdate, error) {
	f.updateCalls.Add(1)
	return f.updates[externalIncidentID], nil
}

func (f *fakeConnector) MapStatus(string) domain.IncidentStatus {
	return connectors.FallbackStatus
}

func (f *fakeConnector) MapSeverity(string) domain.Severity {
	return connectors.FallbackSeverity
}

// fakeFactory resolves connectors by data source name.
type fakeFactory struct {
	connectors map[string]connectors.Connector
}

func (f *fakeFactory) Create(ds domain.DataSource) (connectors.Connector, error) {
	c, ok := f.connectors[ds.Name]
	if !ok {
		return nil, connectors.NewError(connectors.KindConfiguration, "create connector",
			fmt.Errorf("%w: %q", connectors.ErrUnsupportedConnector, ds.Type))
	}
	return c, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SyncEvent
}

func (p *recordingPublisher) Publish(event domain.SyncEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []domain.SyncEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SyncEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) byType(t domain.SyncEventType) []domain.SyncEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.SyncEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// gatedConnector holds FetchIncidents until release is closed or its context ends,
// like an HTTP call in flight.
type gatedConnector struct {
	*fakeConnector
	release <-chan struct{}
}

func (g *gatedConnector) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get incidents: %w", ctx.Err())
	case <-g.release:
	}
	return g.fakeConnector.FetchIncidents(ctx)
}
