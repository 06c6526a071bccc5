package watch

import (
	"context"
	"time"

	"github.com/linnemanlabs/sentinel/internal/analysis"
)

// EventFilter narrows ListEvents. Zero values mean no restriction.
type EventFilter struct {
	WatchlistID string
	Limit       int
}

// Store is the persistence interface for watchlists and events.
type Store interface {
	CreateWatchlist(ctx context.Context, w *Watchlist) error
	GetWatchlist(ctx context.Context, id string) (*Watchlist, bool, error)
	ListWatchlists(ctx context.Context) ([]*Watchlist, error)
	// UpdateWatchlist returns ErrNotFound if the watchlist does not exist.
	UpdateWatchlist(ctx context.Context, w *Watchlist) error
	// DeleteWatchlist removes the watchlist and all its events.
	DeleteWatchlist(ctx context.Context, id string) error

	// CreateEvent returns ErrWatchlistNotFound if e.WatchlistID does not exist.
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, bool, error)
	ListEvents(ctx context.Context, f EventFilter) ([]*Event, error)
	DeleteEvent(ctx context.Context, id string) error

	// ApplyAnalysis writes the four analysis fields of one event in a single
	// update. Re-applying an identical result to a processed event changes
	// nothing. Returns ErrNotFound if the event no longer exists.
	ApplyAnalysis(ctx context.Context, eventID string, res *analysis.Result, at time.Time) error
}
