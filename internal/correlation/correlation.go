// Package correlation threads a per-request identifier through request handling
// and the detached work it schedules, so log lines can be joined after the fact.
package correlation

import (
	"context"
	"net/http"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

const (
	// Header is the inbound and outbound correlation header.
	Header = "X-Correlation-Id"

	// RequestIDHeader is accepted as an inbound fallback when Header is absent.
	RequestIDHeader = "X-Request-Id"

	maxIDLen = 128
)

type ctxKey struct{}

// NewID returns a fresh correlation identifier.
func NewID() string {
	return ulid.Make().String()
}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation identifier stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Ensure returns ctx unchanged if it already carries an identifier, otherwise
// a copy carrying a freshly generated one. The identifier is returned as well.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// Middleware resolves the correlation identifier for each request, stores it in
// the request context, annotates the request-scoped logger and echoes it back
// on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitize(r.Header.Get(Header))
		if id == "" {
			id = sanitize(r.Header.Get(RequestIDHeader))
		}
		if id == "" {
			id = NewID()
		}

		w.Header().Set(Header, id)

		ctx := WithID(r.Context(), id)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With("correlation_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitize drops caller-supplied identifiers that are too long or contain
// anything other than printable ASCII, so they are safe to log verbatim.
func sanitize(id string) string {
	if id == "" || len(id) > maxIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}
