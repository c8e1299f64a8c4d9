package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to a status code.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// StatusClientClosedRequest is written when the client went away before the store answered.
const StatusClientClosedRequest = 499

// HandleError writes the first matching mapping. Store calls cut short by the request
// deadline become 504 and by a disconnected client 499; neither is logged as a failure.
// Anything else is logged and becomes 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	logger := ctxlog.FromContext(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		logger.Debug("request cancelled", "error", err)
		Error(w, StatusClientClosedRequest, "request cancelled")
	default:
		logger.Error("request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
