package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danielmmetz/hn-apicheck/store"
	"github.com/danielmmetz/hn-apicheck/worker"
)

const (
	rateLimitWindow   = 30 * time.Second
	rateLimitCapacity = 10000 // max entries before forced sweep
	rateLimitSweepAge = 60 * time.Second

	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

type RunsHandler struct {
	runs   *store.RunStore
	runner *worker.Runner

	mu          sync.Mutex
	lastTrigger map[string]time.Time // per client, bounded with TTL eviction
}

// NewRunsHandler serves run history and manual triggers. runs may be nil when
// history is disabled.
func NewRunsHandler(runs *store.RunStore, runner *worker.Runner) *RunsHandler {
	return &RunsHandler{
		runs:        runs,
		runner:      runner,
		lastTrigger: make(map[string]time.Time),
	}
}

// List handles GET /api/runs?limit=N
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}

	limit := defaultRunsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxRunsLimit)
		}
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		slog.Error("error listing runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, r, map[string]interface{}{"runs": runs})
}

// Get handles GET /api/runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		slog.Error("error fetching run", "run_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, r, run)
}

// Trigger handles POST /api/runs. The run happens in the background; callers
// follow it on the event stream.
func (h *RunsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r)

	// Rate limit: 1 trigger per client per 30 seconds (with periodic eviction)
	h.mu.Lock()
	now := time.Now()

	if len(h.lastTrigger) > rateLimitCapacity {
		h.sweepLocked(now)
	}

	if last, ok := h.lastTrigger[client]; ok && now.Sub(last) < rateLimitWindow {
		h.mu.Unlock()
		w.Header().Set("Retry-After", strconv.Itoa(int((rateLimitWindow - now.Sub(last)).Seconds())+1))
		http.Error(w, "rate limited, retry after 30s", http.StatusTooManyRequests)
		return
	}
	h.lastTrigger[client] = now
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "accepted",
	})

	// Background work uses a detached context (not tied to the request)
	go h.doRun(context.Background())
}

func (h *RunsHandler) doRun(ctx context.Context) {
	run, shared, err := h.runner.RunShared(ctx, worker.TriggerManual)
	if err != nil {
		slog.Error("manual run failed", "error", err)
		return
	}
	if shared {
		slog.Info("manual run joined a run in progress", "run_id", run.ID)
	}
}

// sweepLocked removes entries older than rateLimitSweepAge. Must be called with h.mu held.
func (h *RunsHandler) sweepLocked(now time.Time) {
	for k, t := range h.lastTrigger {
		if now.Sub(t) > rateLimitSweepAge {
			delete(h.lastTrigger, k)
		}
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
