package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crudebot/internal/strategy"
)

// EngineState is the part of the strategy engine the status endpoint reads.
type EngineState interface {
	ListNames() []string
	Snapshot() strategy.Snapshot
}

// StatusHandler serves the bot's mode, strategy order and cycle statistics.
type StatusHandler struct {
	mode      string
	dryRun    bool
	engine    EngineState
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, dryRun bool, engine EngineState) *StatusHandler {
	return &StatusHandler{mode: mode, dryRun: dryRun, engine: engine, startedAt: time.Now().UTC()}
}

// GetStatus responds with the current mode and engine snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	respond(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"dry_run":        h.dryRun,
		"strategy_order": h.engine.ListNames(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"cycles":         snap.Cycles,
		"last_cycle":     snap.LastCycle,
		"strategies":     snap.Strategies,
	})
}
