package postgres

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/correlation"
)

func traceOne(ctx context.Context, err error) {
	tr := newQueryTracer(nil)
	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "UPDATE events SET summary = $1", Args: []any{"s"}})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("UPDATE 1"), Err: err})
}

func TestDBStats_Snapshot(t *testing.T) {
	t.Parallel()

	ctx, stats := WithDBStats(context.Background())
	if dbStatsFromContext(ctx) != stats {
		t.Fatal("context does not carry the returned stats")
	}

	stats.record(10*time.Millisecond, nil)
	stats.record(20*time.Millisecond, errors.New("timeout"))

	q, f, d := stats.Snapshot()
	if q != 2 || f != 1 || d != 30*time.Millisecond {
		t.Errorf("Snapshot = (%d, %d, %v), want (2, 1, 30ms)", q, f, d)
	}
	if dbStatsFromContext(context.Background()) != nil {
		t.Error("plain context should carry no stats")
	}
}

func TestWithHTTPMethod(t *testing.T) {
	t.Parallel()

	if got := httpMethodFromContext(WithHTTPMethod(context.Background(), "POST")); got != "POST" {
		t.Errorf("method = %q, want POST", got)
	}
	if got := httpMethodFromContext(WithHTTPMethod(context.Background(), "")); got != "" {
		t.Errorf("method = %q, want empty", got)
	}
}

func TestMetricLabels(t *testing.T) {
	t.Parallel()

	routed := chi.NewRouteContext()
	routed.RoutePatterns = []string{"/api/v1/events"}

	tests := []struct {
		name       string
		ctx        context.Context
		site       querySite
		wantMethod string
		wantRoute  string
	}{
		{
			name:       "http request",
			ctx:        WithHTTPMethod(context.WithValue(context.Background(), chi.RouteCtxKey, routed), "POST"),
			site:       querySite{Origin: OriginHTTP},
			wantMethod: "POST",
			wantRoute:  "/api/v1/events",
		},
		{
			name:       "analysis task",
			ctx:        context.Background(),
			site:       querySite{Origin: OriginAnalysisTask},
			wantMethod: "UNKNOWN",
			wantRoute:  taskRoute,
		},
		{
			name:       "unattributed",
			ctx:        context.Background(),
			wantMethod: "UNKNOWN",
			wantRoute:  "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			method, route := metricLabels(tt.ctx, tt.site)
			if method != tt.wantMethod || route != tt.wantRoute {
				t.Errorf("metricLabels = (%q, %q), want (%q, %q)", method, route, tt.wantMethod, tt.wantRoute)
			}
		})
	}
}

func TestQueryFields(t *testing.T) {
	t.Parallel()

	meta := &queryMeta{
		sql:  "UPDATE events SET summary = $1",
		site: querySite{Caller: "(*Store).ApplyAnalysis", Handler: "(*Writer).Apply", Origin: OriginAnalysisTask},
	}
	data := pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("UPDATE 1"),
		Err:        &pgconn.PgError{Code: "23503", ConstraintName: "events_watchlist_id_fkey"},
	}
	ctx := correlation.WithID(context.Background(), "corr-9")

	fields := queryFields(ctx, meta, data, time.Millisecond)
	got := map[string]any{}
	for i := 0; i+1 < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1]
	}

	want := map[string]any{
		"db.operation.name":   "UPDATE",
		"pg.command_tag":      "UPDATE 1",
		"db.rows":             int64(1),
		"db.caller":           "(*Store).ApplyAnalysis",
		"db.handler":          "(*Writer).Apply",
		"db.origin":           OriginAnalysisTask,
		"correlation_id":      "corr-9",
		"db.error_code":       "23503",
		"db.error_constraint": "events_watchlist_id_fkey",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestSetQueryObserver(t *testing.T) {
	defer SetQueryObserver(nil)

	SetQueryObserver(QueryObserverFunc(func(context.Context, string, string, string, time.Duration) {}))
	if currentObserver() == nil {
		t.Fatal("expected observer after Set")
	}
	SetQueryObserver(nil)
	if currentObserver() != nil {
		t.Fatal("expected no observer after Set(nil)")
	}
}

// Not parallel: swaps the global query observer.
func TestQueryTracer_FeedsObserverAndStats(t *testing.T) {
	defer SetQueryObserver(nil)

	var gotMethod, gotRoute, gotOutcome string
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, method, route, outcome string, _ time.Duration) {
		gotMethod, gotRoute, gotOutcome = method, route, outcome
	}))

	ctx, stats := WithDBStats(WithHTTPMethod(context.Background(), "POST"))
	traceOne(ctx, errors.New("boom"))

	if q, f, d := stats.Snapshot(); q != 1 || f != 1 || d <= 0 {
		t.Errorf("stats = (%d, %d, %v), want one failed query with a duration", q, f, d)
	}
	if gotMethod != "POST" || gotRoute != "unknown" || gotOutcome != "error" {
		t.Errorf("observer got (%q, %q, %q)", gotMethod, gotRoute, gotOutcome)
	}
}

func TestQueryTracer_EndWithoutStart(t *testing.T) {
	t.Parallel()

	ctx, stats := WithDBStats(context.Background())
	newQueryTracer(nil).TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	if q, _, _ := stats.Snapshot(); q != 0 {
		t.Errorf("queries = %d, want 0 without a matching start", q)
	}
}

func TestRequestStats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		queries int
		wantLog bool
	}{
		{name: "request with queries", queries: 2, wantLog: true},
		{name: "request without queries", queries: 0, wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			L, err := log.New(&log.Options{App: "sentinel-test", JsonFormat: true, Writer: &buf})
			if err != nil {
				t.Fatalf("log.New: %v", err)
			}

			var method string
			h := RequestStats(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				method = httpMethodFromContext(r.Context())
				for range tt.queries {
					traceOne(r.Context(), nil)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
			req = req.WithContext(log.WithContext(req.Context(), L))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", rec.Code)
			}
			if method != http.MethodPost {
				t.Errorf("handler saw method %q, want POST", method)
			}

			out := buf.String()
			if got := strings.Contains(out, "request db stats"); got != tt.wantLog {
				t.Fatalf("stats logged = %v, want %v; log:\n%s", got, tt.wantLog, out)
			}
			if tt.wantLog && !strings.Contains(out, `"db.queries":2`) {
				t.Errorf("log missing query count:\n%s", out)
			}
		})
	}
}
