package eventapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sentinel/internal/watch"
)

func (a *API) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	var in watch.WatchlistInput
	if !decode(w, r, &in) {
		return
	}

	wl, err := a.svc.CreateWatchlist(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err, "failed to create watchlist")
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (a *API) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListWatchlists(r.Context())
	if err != nil {
		a.writeError(w, r, err, "failed to list watchlists")
		return
	}
	if list == nil {
		list = []*watch.Watchlist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"watchlists": list})
}

func (a *API) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sentinel.watchlist.id", id))

	wl, ok, err := a.svc.GetWatchlist(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get watchlist", "watchlist_id", id)
		return
	}
	if !ok {
		a.writeError(w, r, watch.ErrNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (a *API) handleUpdateWatchlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sentinel.watchlist.id", id))

	var in watch.WatchlistInput
	if !decode(w, r, &in) {
		return
	}

	wl, err := a.svc.UpdateWatchlist(r.Context(), id, in)
	if err != nil {
		a.writeError(w, r, err, "failed to update watchlist", "watchlist_id", id)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (a *API) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sentinel.watchlist.id", id))

	if err := a.svc.DeleteWatchlist(r.Context(), id); err != nil {
		a.writeError(w, r, err, "failed to delete watchlist", "watchlist_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type simulateRequest struct {
	Count *int `json:"count"`
}

func (a *API) handleSimulate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sentinel.watchlist.id", id))

	// an empty body simulates a single event
	req := simulateRequest{}
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}

	events, err := a.svc.Simulate(r.Context(), id, count)
	if err != nil {
		a.writeError(w, r, err, "failed to simulate events", "watchlist_id", id, "count", count)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"events": events})
}
