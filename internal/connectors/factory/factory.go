// Package factory builds the connector matching a data source's type.
package factory

import (
	"fmt"
	"net/url"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/connectors/cachet"
	"github.com/bissquit/incident-radar/internal/connectors/gcp"
	"github.com/bissquit/incident-radar/internal/connectors/statuspage"
	"github.com/bissquit/incident-radar/internal/domain"
)

// Factory creates connectors sharing one set of client options.
type Factory struct {
	opts connectors.Options
}

// New creates a Factory.
func New(opts connectors.Options) *Factory {
	return &Factory{opts: opts}
}

// Create returns a connector bound to ds. It performs no network I/O, so an unknown type or
// a malformed base URL fails with a configuration error before any request is made.
func (f *Factory) Create(ds domain.DataSource) (connectors.Connector, error) {
	const op = "create connector"

	if err := validateBaseURL(ds.BaseURL); err != nil {
		return nil, connectors.NewError(connectors.KindConfiguration, op, err)
	}

	switch ds.Type {
	case domain.ConnectorStatuspage:
		return statuspage.New(ds, f.opts), nil
	case domain.ConnectorCachet:
		return cachet.New(ds, f.opts), nil
	case domain.ConnectorGCP:
		return gcp.New(ds, f.opts), nil
	default:
		return nil, connectors.NewError(connectors.KindConfiguration, op,
			fmt.Errorf("%w: %q", connectors.ErrUnsupportedConnector, ds.Type))
	}
}

// Supported lists the connector types Create accepts.
func Supported() []domain.ConnectorType {
	return []domain.ConnectorType{domain.ConnectorStatuspage, domain.ConnectorCachet, domain.ConnectorGCP}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base url %q: missing host", raw)
	}
	return nil
}
