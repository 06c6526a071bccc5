package eventapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sentinel/internal/watch"
)

func (a *API) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in watch.EventInput
	if !decode(w, r, &in) {
		return
	}

	ev, err := a.svc.CreateEvent(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err, "failed to create event", "watchlist_id", in.WatchlistID)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("sentinel.event.id", ev.ID),
		attribute.String("sentinel.watchlist.id", ev.WatchlistID),
	)
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := watch.EventFilter{WatchlistID: q.Get("watchlistId")}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		f.Limit = n
	}

	events, err := a.svc.ListEvents(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err, "failed to list events", "watchlist_id", f.WatchlistID)
		return
	}
	if events == nil {
		events = []*watch.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *API) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sentinel.event.id", id))

	ev, ok, err := a.svc.GetEvent(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get event", "event_id", id)
		return
	}
	if !ok {
		a.writeError(w, r, watch.ErrNotFound, "")
		return
	}

	span.SetAttributes(attribute.Bool("sentinel.event.processed", ev.Processed()))
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sentinel.event.id", id))

	if err := a.svc.DeleteEvent(r.Context(), id); err != nil {
		a.writeError(w, r, err, "failed to delete event", "event_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.AnalysisStats())
}
