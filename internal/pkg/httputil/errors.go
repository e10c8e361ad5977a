package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/apron-guard/internal/pkg/ctxlog"
)

// ErrorMapping maps an error matched with errors.Is to a response.
// An empty Message exposes err.Error().
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the first matching mapping. Deadlines become 504 and
// anything else unmatched is logged and reported as 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		if m.Status >= http.StatusInternalServerError {
			ctxlog.FromContext(ctx).Error("request failed", "status", m.Status, "error", err)
		}
		Error(w, m.Status, msg)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		ctxlog.FromContext(ctx).Warn("request timed out", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
