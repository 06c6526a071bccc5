package watch

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/sentinel/internal/analysis"
)

const (
	maxNameLen        = 200
	maxTermLen        = 200
	maxTerms          = 100
	maxEventTypeLen   = 100
	maxDescriptionLen = 4000
	defaultListLimit  = 100
	maxListLimit      = 1000

	// DefaultMaxSimulate caps Simulate's count when no limit is configured.
	DefaultMaxSimulate = 50
)

// WatchlistInput carries the caller-editable watchlist fields.
type WatchlistInput struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Terms       []string `json:"terms"`
	Active      *bool    `json:"active"`
}

// EventInput is the event creation trigger payload.
type EventInput struct {
	Type        string         `json:"eventType"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	WatchlistID string         `json:"watchlistId"`
}

// AnalysisStats is the read-only view over the pipeline counters.
type AnalysisStats struct {
	Mode analysis.Mode `json:"mode"`
	Stats
}

// ServiceOptions tunes a Service. Zero values select defaults.
type ServiceOptions struct {
	Mode        analysis.Mode
	MaxSimulate int
}

// Service is the business boundary for watchlists and events.
type Service struct {
	store       Store
	dispatcher  *Dispatcher
	logger      log.Logger
	metrics     *Metrics
	mode        analysis.Mode
	maxSimulate int
	now         func() time.Time
}

// NewService creates a Service. metrics may be nil.
func NewService(store Store, dispatcher *Dispatcher, logger log.Logger, metrics *Metrics, opts ServiceOptions) *Service {
	if store == nil {
		panic(xerrors.New("watch store is required"))
	}
	if dispatcher == nil {
		panic(xerrors.New("analysis dispatcher is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if opts.MaxSimulate <= 0 {
		opts.MaxSimulate = DefaultMaxSimulate
	}
	return &Service{
		store:       store,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     metrics,
		mode:        opts.Mode,
		maxSimulate: opts.MaxSimulate,
		now:         time.Now,
	}
}

// CreateWatchlist validates in and stores a new watchlist.
func (s *Service) CreateWatchlist(ctx context.Context, in WatchlistInput) (*Watchlist, error) {
	name, desc, terms, err := validateWatchlist(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	w := &Watchlist{
		ID:          ulid.Make().String(),
		Name:        name,
		Description: desc,
		Terms:       terms,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateWatchlist(ctx, w); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "watchlist created", "watchlist_id", w.ID, "terms", len(w.Terms))
	return w, nil
}

// UpdateWatchlist replaces the editable fields of an existing watchlist.
func (s *Service) UpdateWatchlist(ctx context.Context, id string, in WatchlistInput) (*Watchlist, error) {
	name, desc, terms, err := validateWatchlist(in)
	if err != nil {
		return nil, err
	}

	w, ok, err := s.store.GetWatchlist(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	w.Name = name
	w.Description = desc
	w.Terms = terms
	if in.Active != nil {
		w.Active = *in.Active
	}
	w.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateWatchlist(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetWatchlist retrieves a watchlist by ID.
func (s *Service) GetWatchlist(ctx context.Context, id string) (*Watchlist, bool, error) {
	return s.store.GetWatchlist(ctx, id)
}

// ListWatchlists returns all watchlists, newest first.
func (s *Service) ListWatchlists(ctx context.Context) ([]*Watchlist, error) {
	return s.store.ListWatchlists(ctx)
}

// DeleteWatchlist removes a watchlist and its events.
func (s *Service) DeleteWatchlist(ctx context.Context, id string) error {
	if err := s.store.DeleteWatchlist(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "watchlist deleted", "watchlist_id", id)
	return nil
}

// CreateEvent stores a new unprocessed event and schedules exactly one
// analysis task for it. Nothing is scheduled if creation fails.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	ev, err := s.createEvent(ctx, in)
	if s.metrics != nil {
		s.metrics.EventsCreatedTotal.WithLabelValues(createResult(err)).Inc()
	}
	return ev, err
}

func (s *Service) createEvent(ctx context.Context, in EventInput) (*Event, error) {
	eventType := strings.TrimSpace(in.Type)
	description := strings.TrimSpace(in.Description)
	watchlistID := strings.TrimSpace(in.WatchlistID)

	switch {
	case eventType == "":
		return nil, invalid("eventType", "is required")
	case utf8.RuneCountInString(eventType) > maxEventTypeLen:
		return nil, invalid("eventType", "must be at most %d characters", maxEventTypeLen)
	case description == "":
		return nil, invalid("description", "is required")
	case utf8.RuneCountInString(description) > maxDescriptionLen:
		return nil, invalid("description", "must be at most %d characters", maxDescriptionLen)
	case watchlistID == "":
		return nil, invalid("watchlistId", "is required")
	}

	meta, err := NormalizeMetadata(in.Metadata)
	if err != nil {
		return nil, invalid("metadata", "%v", err)
	}

	w, ok, err := s.store.GetWatchlist(ctx, watchlistID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWatchlistNotFound
	}

	now := s.now().UTC()
	ev := &Event{
		ID:          ulid.Make().String(),
		Type:        eventType,
		Description: description,
		Metadata:    meta,
		WatchlistID: w.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}

	// hand the task its own copy; the caller keeps ev
	s.dispatcher.Dispatch(ctx, ev.Clone(), w.Terms)

	return ev, nil
}

// GetEvent retrieves an event by ID.
func (s *Service) GetEvent(ctx context.Context, id string) (*Event, bool, error) {
	return s.store.GetEvent(ctx, id)
}

// ListEvents returns events, newest first.
func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]*Event, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.ListEvents(ctx, f)
}

// DeleteEvent removes an event. A pending analysis for it will fail quietly.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.store.DeleteEvent(ctx, id)
}

// AnalysisStats returns the pipeline counters and the pinned strategy mode.
func (s *Service) AnalysisStats() AnalysisStats {
	return AnalysisStats{Mode: s.mode, Stats: s.dispatcher.Stats()}
}

func createResult(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrWatchlistNotFound):
		return "watchlist_not_found"
	default:
		return "error"
	}
}

func validateWatchlist(in WatchlistInput) (string, *string, []string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", nil, nil, invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", nil, nil, invalid("name", "must be at most %d characters", maxNameLen)
	}

	var desc *string
	if in.Description != nil {
		if d := strings.TrimSpace(*in.Description); d != "" {
			desc = &d
		}
	}

	terms := normalizeTerms(in.Terms)
	if len(terms) == 0 {
		return "", nil, nil, invalid("terms", "at least one non-empty term is required")
	}
	if len(terms) > maxTerms {
		return "", nil, nil, invalid("terms", "at most %d terms allowed", maxTerms)
	}
	for _, t := range terms {
		if utf8.RuneCountInString(t) > maxTermLen {
			return "", nil, nil, invalid("terms", "each term must be at most %d characters", maxTermLen)
		}
	}
	return name, desc, terms, nil
}

// normalizeTerms trims, drops empty entries and removes case-insensitive
// duplicates, keeping first occurrences in order.
func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
