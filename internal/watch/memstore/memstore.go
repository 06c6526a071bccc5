// Package memstore provides an in-memory implementation of watch.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/sentinel/internal/analysis"
	"github.com/linnemanlabs/sentinel/internal/watch"
)

// Store holds watchlists and events in memory. Suitable for dev/testing.
type Store struct {
	mu         sync.RWMutex
	watchlists map[string]*watch.Watchlist
	events     map[string]*watch.Event
}

var _ watch.Store = (*Store)(nil)

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		watchlists: make(map[string]*watch.Watchlist),
		events:     make(map[string]*watch.Event),
	}
}

// CreateWatchlist stores a copy of w.
func (s *Store) CreateWatchlist(_ context.Context, w *watch.Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchlists[w.ID] = w.Clone()
	return nil
}

// GetWatchlist retrieves a watchlist by ID. Returns a copy.
func (s *Store) GetWatchlist(_ context.Context, id string) (*watch.Watchlist, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.watchlists[id]
	if !ok {
		return nil, false, nil
	}
	return w.Clone(), true, nil
}

// ListWatchlists returns copies of all watchlists, newest first.
func (s *Store) ListWatchlists(_ context.Context) ([]*watch.Watchlist, error) {
	s.mu.RLock()
	out := make([]*watch.Watchlist, 0, len(s.watchlists))
	for _, w := range s.watchlists {
		out = append(out, w.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

// UpdateWatchlist replaces an existing watchlist.
func (s *Store) UpdateWatchlist(_ context.Context, w *watch.Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchlists[w.ID]; !ok {
		return watch.ErrNotFound
	}
	s.watchlists[w.ID] = w.Clone()
	return nil
}

// DeleteWatchlist removes a watchlist and its events.
func (s *Store) DeleteWatchlist(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchlists[id]; !ok {
		return watch.ErrNotFound
	}
	delete(s.watchlists, id)
	for eid, e := range s.events {
		if e.WatchlistID == id {
			delete(s.events, eid)
		}
	}
	return nil
}

// CreateEvent stores a copy of e.
func (s *Store) CreateEvent(_ context.Context, e *watch.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchlists[e.WatchlistID]; !ok {
		return watch.ErrWatchlistNotFound
	}
	s.events[e.ID] = e.Clone()
	return nil
}

// GetEvent retrieves an event by ID. Returns a copy.
func (s *Store) GetEvent(_ context.Context, id string) (*watch.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

// ListEvents returns copies of matching events, newest first.
func (s *Store) ListEvents(_ context.Context, f watch.EventFilter) ([]*watch.Event, error) {
	s.mu.RLock()
	out := make([]*watch.Event, 0, len(s.events))
	for _, e := range s.events {
		if f.WatchlistID != "" && e.WatchlistID != f.WatchlistID {
			continue
		}
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return watch.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

// ApplyAnalysis sets the analysis fields of an event under the write lock, so
// readers never observe a partial result.
func (s *Store) ApplyAnalysis(_ context.Context, eventID string, res *analysis.Result, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return watch.ErrNotFound
	}
	if cur := e.Analysis(); cur != nil && *cur == *res {
		return nil
	}
	e.SetAnalysis(res, at)
	return nil
}

func newer(at time.Time, aID string, bt time.Time, bID string) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return aID > bID
}
