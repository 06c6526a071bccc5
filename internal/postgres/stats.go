package postgres

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type dbStatsKey struct{}

type httpMethodKey struct{}

// DBStats accumulates the queries issued on behalf of one request.
type DBStats struct {
	mu       sync.Mutex
	queries  int
	failures int
	elapsed  time.Duration
}

func (s *DBStats) record(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	s.elapsed += dur
	if err != nil {
		s.failures++
	}
}

// Snapshot returns the query count, failed query count and summed query time.
func (s *DBStats) Snapshot() (queries, failures int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.failures, s.elapsed
}

// WithDBStats attaches a fresh DBStats to ctx. Queries traced with the
// returned context are counted into it.
func WithDBStats(ctx context.Context) (context.Context, *DBStats) {
	s := &DBStats{}
	return context.WithValue(ctx, dbStatsKey{}, s), s
}

func dbStatsFromContext(ctx context.Context) *DBStats {
	s, _ := ctx.Value(dbStatsKey{}).(*DBStats)
	return s
}

// WithHTTPMethod stores the HTTP method used to label query metrics.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, httpMethodKey{}, method)
}

func httpMethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(httpMethodKey{}).(string)
	return m
}

// RequestStats is HTTP middleware that labels queries with the request method
// and, once the handler returns, logs how many queries the request issued and
// how long they took. Requests that never touch the database log nothing.
func RequestStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, stats := WithDBStats(WithHTTPMethod(r.Context(), r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))

		queries, failures, elapsed := stats.Snapshot()
		if queries == 0 {
			return
		}
		log.FromContext(ctx).Info(ctx, "request db stats",
			"db.queries", queries,
			"db.failures", failures,
			"db.total_duration", elapsed.Seconds(),
		)
	})
}
