package api

import (
	"log/slog"
	"net/http"

	"github.com/danielmmetz/hn-apicheck/sse"
	"github.com/danielmmetz/hn-apicheck/store"
	"github.com/danielmmetz/hn-apicheck/worker"
)

type HealthHandler struct {
	runner *worker.Runner
	runs   *store.RunStore
	broker *sse.Broker
}

// NewHealthHandler builds the health endpoint. runs may be nil.
func NewHealthHandler(runner *worker.Runner, runs *store.RunStore, broker *sse.Broker) *HealthHandler {
	return &HealthHandler{runner: runner, runs: runs, broker: broker}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	last := h.runner.Last()
	if last == nil && h.runs != nil {
		// nothing ran since startup; fall back to history
		var err error
		if last, err = h.runs.Latest(r.Context()); err != nil {
			slog.Error("health: latest run", "error", err)
		}
	}
	if last != nil {
		summary := *last
		summary.Results = nil
		last = &summary
	}

	resp := map[string]interface{}{
		"status":      "ok",
		"last_run":    last,
		"subscribers": h.broker.SubscriberCount(),
	}
	writeJSON(w, r, resp)
}
