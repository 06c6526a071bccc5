// Package pgstore provides a PostgreSQL implementation of watch.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sentinel/internal/analysis"
	"github.com/linnemanlabs/sentinel/internal/watch"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/watch/pgstore")

//go:embed schema.sql
var schema string

// foreign_key_violation
const pgForeignKeyViolation = "23503"

// Store persists watchlists and events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ watch.Store = (*Store)(nil)

// New pings the pool, applies the schema, and returns a ready Store. The Store
// takes ownership of pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const watchlistColumns = `id, name, description, terms, active, created_at, updated_at`

const eventColumns = `id, event_type, description, metadata, watchlist_id, summary, severity,
	suggested_action, processed_at, created_at, updated_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateWatchlist inserts a new watchlist.
func (s *Store) CreateWatchlist(ctx context.Context, w *watch.Watchlist) error {
	ctx, span := startSpan(ctx, "pgstore.CreateWatchlist", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO watchlists (`+watchlistColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.Name, w.Description, w.Terms, w.Active, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert watchlist: %w", err))
	}
	return nil
}

// GetWatchlist retrieves a watchlist by ID.
func (s *Store) GetWatchlist(ctx context.Context, id string) (*watch.Watchlist, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetWatchlist", "SELECT")
	defer span.End()

	w, err := scanWatchlist(s.pool.QueryRow(ctx, `SELECT `+watchlistColumns+` FROM watchlists WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, err)
	}
	return w, true, nil
}

// ListWatchlists returns all watchlists, newest first.
func (s *Store) ListWatchlists(ctx context.Context) ([]*watch.Watchlist, error) {
	ctx, span := startSpan(ctx, "pgstore.ListWatchlists", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+watchlistColumns+` FROM watchlists ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query watchlists: %w", err))
	}
	defer rows.Close()

	var out []*watch.Watchlist
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate watchlists: %w", err))
	}
	return out, nil
}

// UpdateWatchlist replaces the mutable fields of a watchlist.
func (s *Store) UpdateWatchlist(ctx context.Context, w *watch.Watchlist) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateWatchlist", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE watchlists SET name = $2, description = $3, terms = $4, active = $5, updated_at = $6 WHERE id = $1`,
		w.ID, w.Name, w.Description, w.Terms, w.Active, w.UpdatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("update watchlist: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}

// DeleteWatchlist removes a watchlist; its events go with it via ON DELETE CASCADE.
func (s *Store) DeleteWatchlist(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "pgstore.DeleteWatchlist", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM watchlists WHERE id = $1`, id)
	if err != nil {
		return fail(span, fmt.Errorf("delete watchlist: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}

// CreateEvent inserts a new unprocessed event.
func (s *Store) CreateEvent(ctx context.Context, e *watch.Event) error {
	ctx, span := startSpan(ctx, "pgstore.CreateEvent", "INSERT")
	defer span.End()

	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fail(span, fmt.Errorf("marshal metadata: %w", err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, event_type, description, metadata, watchlist_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Type, e.Description, metaJSON, e.WatchlistID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return watch.ErrWatchlistNotFound
		}
		return fail(span, fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (*watch.Event, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetEvent", "SELECT")
	defer span.End()

	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, err)
	}
	return e, true, nil
}

// ListEvents returns matching events, newest first.
func (s *Store) ListEvents(ctx context.Context, f watch.EventFilter) ([]*watch.Event, error) {
	ctx, span := startSpan(ctx, "pgstore.ListEvents", "SELECT")
	defer span.End()

	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE ($1 = '' OR watchlist_id = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		f.WatchlistID, limit,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	var out []*watch.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate events: %w", err))
	}
	return out, nil
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "pgstore.DeleteEvent", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fail(span, fmt.Errorf("delete event: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}

// ApplyAnalysis writes all four analysis fields in a single UPDATE. The row is
// only touched when unprocessed or when the result differs, so re-applying an
// identical result keeps the original processed_at.
func (s *Store) ApplyAnalysis(ctx context.Context, eventID string, res *analysis.Result, at time.Time) error {
	ctx, span := startSpan(ctx, "pgstore.ApplyAnalysis", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE events
		 SET summary = $2, severity = $3, suggested_action = $4, processed_at = $5, updated_at = $5
		 WHERE id = $1
		   AND (processed_at IS NULL
		        OR summary IS DISTINCT FROM $2
		        OR severity IS DISTINCT FROM $3
		        OR suggested_action IS DISTINCT FROM $4)`,
		eventID, res.Summary, string(res.Severity), res.SuggestedAction, at,
	)
	if err != nil {
		return fail(span, fmt.Errorf("apply analysis: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
		return fail(span, fmt.Errorf("check event: %w", err))
	}
	if !exists {
		return watch.ErrNotFound
	}
	return nil
}

func scanWatchlist(row pgx.Row) (*watch.Watchlist, error) {
	var w watch.Watchlist
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &w.Terms, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan watchlist: %w", err)
	}
	if w.Terms == nil {
		w.Terms = []string{}
	}
	return &w, nil
}

func scanEvent(row pgx.Row) (*watch.Event, error) {
	var (
		e        watch.Event
		metaJSON []byte
		severity *string
	)
	err := row.Scan(
		&e.ID, &e.Type, &e.Description, &metaJSON, &e.WatchlistID, &e.Summary, &severity,
		&e.SuggestedAction, &e.ProcessedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	if severity != nil {
		sev := analysis.Severity(*severity)
		e.Severity = &sev
	}

	e.Metadata = watch.Metadata{}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}
