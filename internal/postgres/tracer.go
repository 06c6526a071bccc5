package postgres

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/correlation"
)

// taskRoute labels metrics for queries issued by analysis tasks, which run
// outside any HTTP route.
const taskRoute = "analysis.task"

// QueryObserver receives the duration of every traced query.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

type observerBox struct{ QueryObserver }

var observer atomic.Pointer[observerBox]

// SetQueryObserver installs the process-wide observer. nil removes it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&observerBox{QueryObserver: o})
}

func currentObserver() QueryObserver {
	if b := observer.Load(); b != nil {
		return b.QueryObserver
	}
	return nil
}

type queryKey struct{}

// queryMeta travels from TraceQueryStart to TraceQueryEnd in the query context.
type queryMeta struct {
	sql   string
	args  []any
	start time.Time
	site  querySite
}

// queryTracer logs each query with its call site, feeds the query observer and
// per-request DBStats, then defers to inner (otelpgx) for spans.
type queryTracer struct {
	inner pgx.QueryTracer
}

func newQueryTracer(inner pgx.QueryTracer) queryTracer {
	return queryTracer{inner: inner}
}

func (t queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	meta := &queryMeta{
		sql:   data.SQL,
		args:  data.Args,
		start: time.Now(),
		site:  resolveQuerySite(1),
	}
	if meta.site.Origin == "" && chi.RouteContext(ctx) != nil {
		meta.site.Origin = OriginHTTP
	}

	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(siteAttributes(meta.site)...)
	}
	return context.WithValue(ctx, queryKey{}, meta)
}

func (t queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	meta, ok := ctx.Value(queryKey{}).(*queryMeta)
	if !ok {
		return
	}
	dur := time.Since(meta.start)

	if stats := dbStatsFromContext(ctx); stats != nil {
		stats.record(dur, data.Err)
	}
	if obs := currentObserver(); obs != nil {
		method, route := metricLabels(ctx, meta.site)
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		obs.ObserveQuery(ctx, method, route, outcome, dur)
	}

	fields := queryFields(ctx, meta, data, dur)
	L := log.FromContext(ctx)
	if data.Err != nil {
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Debug(ctx, "db query", fields...)
}

// metricLabels picks method and route labels. Analysis tasks have neither, so
// they are grouped under taskRoute.
func metricLabels(ctx context.Context, site querySite) (method, route string) {
	method = httpMethodFromContext(ctx)
	if rc := chi.RouteContext(ctx); rc != nil {
		route = rc.RoutePattern()
	}
	if route == "" && site.Origin == OriginAnalysisTask {
		route = taskRoute
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	return method, route
}

func siteAttributes(site querySite) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if site.Caller != "" {
		attrs = append(attrs, attribute.String("db.caller", site.Caller))
	}
	if site.Handler != "" {
		attrs = append(attrs, attribute.String("db.handler", site.Handler))
	}
	if site.Origin != "" {
		attrs = append(attrs, attribute.String("sentinel.db.origin", site.Origin))
	}
	return attrs
}

func queryFields(ctx context.Context, meta *queryMeta, data pgx.TraceQueryEndData, dur time.Duration) []any {
	fields := []any{
		"db.statement", meta.sql,
		"db.args", meta.args,
		"db.duration", dur.Seconds(),
	}

	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		if op, _, _ := strings.Cut(tag, " "); op != "" {
			fields = append(fields, "db.operation.name", strings.ToUpper(op))
		}
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}

	if meta.site.Caller != "" {
		fields = append(fields, "db.caller", meta.site.Caller)
	}
	if meta.site.Handler != "" {
		fields = append(fields, "db.handler", meta.site.Handler)
	}
	if meta.site.Origin != "" {
		fields = append(fields, "db.origin", meta.site.Origin)
	}
	if id := correlation.FromContext(ctx); id != "" {
		fields = append(fields, "correlation_id", id)
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields,
			"db.error_code", pgErr.Code,
			"db.error_constraint", pgErr.ConstraintName,
		)
	}
	return fields
}
