// Package eventapi exposes watchlists, events and analysis stats over HTTP.
package eventapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sentinel/internal/correlation"
	"github.com/linnemanlabs/sentinel/internal/watch"
)

// WatchService defines the business operations eventapi needs.
type WatchService interface {
	CreateWatchlist(ctx context.Context, in watch.WatchlistInput) (*watch.Watchlist, error)
	UpdateWatchlist(ctx context.Context, id string, in watch.WatchlistInput) (*watch.Watchlist, error)
	GetWatchlist(ctx context.Context, id string) (*watch.Watchlist, bool, error)
	ListWatchlists(ctx context.Context) ([]*watch.Watchlist, error)
	DeleteWatchlist(ctx context.Context, id string) error

	CreateEvent(ctx context.Context, in watch.EventInput) (*watch.Event, error)
	GetEvent(ctx context.Context, id string) (*watch.Event, bool, error)
	ListEvents(ctx context.Context, f watch.EventFilter) ([]*watch.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	Simulate(ctx context.Context, watchlistID string, count int) ([]*watch.Event, error)

	AnalysisStats() watch.AnalysisStats
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    WatchService
}

// New creates a new API handler.
func New(logger log.Logger, svc WatchService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("watch service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(correlation.Middleware)

		r.Route("/watchlists", func(r chi.Router) {
			r.Post("/", a.handleCreateWatchlist)
			r.Get("/", a.handleListWatchlists)
			r.Get("/{id}", a.handleGetWatchlist)
			r.Put("/{id}", a.handleUpdateWatchlist)
			r.Delete("/{id}", a.handleDeleteWatchlist)
			r.Post("/{id}/simulate", a.handleSimulate)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", a.handleCreateEvent)
			r.Get("/", a.handleListEvents)
			r.Get("/{id}", a.handleGetEvent)
			r.Delete("/{id}", a.handleDeleteEvent)
		})

		r.Get("/analysis/stats", a.handleStats)
	})
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return false
	}
	return true
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// logged and hidden behind a generic 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string, kv ...any) {
	var ve *watch.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Field: ve.Field})
	case errors.Is(err, watch.ErrWatchlistNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "watchlist not found"})
	case errors.Is(err, watch.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		kv = append(kv, "correlation_id", correlation.FromContext(r.Context()))
		a.logger.Error(r.Context(), err, msg, kv...)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
