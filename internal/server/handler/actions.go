package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// ActionReader reads the action journal.
type ActionReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Action, error)
	Get(ctx context.Context, id string) (domain.Action, error)
}

// ActionHandler serves journal entries.
type ActionHandler struct {
	journal ActionReader
	logger  *slog.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(journal ActionReader, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{journal: journal, logger: logger.With(slog.String("handler", "actions"))}
}

// ListActions returns journal entries, newest first unless order=asc.
// GET /api/actions?limit=&offset=&since=&until=&order=
func (h *ActionHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	opts, err := journalQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := h.journal.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list actions failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}
	if actions == nil {
		actions = []domain.Action{}
	}
	respond(w, http.StatusOK, actions)
}

// GetAction returns one action.
// GET /api/actions/{id}
func (h *ActionHandler) GetAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action, err := h.journal.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "action not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get action failed", slog.String("id", id), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "failed to get action")
		return
	}
	respond(w, http.StatusOK, action)
}

// StreamReader reads the live action stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// LiveActionHandler serves the recent tail of the action stream. It works
// without the Postgres journal.
type LiveActionHandler struct {
	stream StreamReader
	logger *slog.Logger
}

// NewLiveActionHandler creates a LiveActionHandler.
func NewLiveActionHandler(stream StreamReader, logger *slog.Logger) *LiveActionHandler {
	return &LiveActionHandler{stream: stream, logger: logger.With(slog.String("handler", "live_actions"))}
}

type streamedAction struct {
	StreamID string        `json:"stream_id"`
	Action   domain.Action `json:"action"`
}

// ListLive returns stream entries after the given stream id.
// GET /api/actions/live?after=&limit=
func (h *LiveActionHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	after, limit := streamQuery(r)
	msgs, err := h.stream.StreamRead(r.Context(), domain.StreamActions, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read action stream failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "failed to read action stream")
		return
	}

	out := make([]streamedAction, 0, len(msgs))
	for _, m := range msgs {
		var a domain.Action
		if err := json.Unmarshal(m.Payload, &a); err != nil {
			h.logger.WarnContext(r.Context(), "skipping undecodable stream entry",
				slog.String("stream_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, streamedAction{StreamID: m.ID, Action: a})
	}
	respond(w, http.StatusOK, out)
}
