package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ctxActor contextKey = "actor"

const actorHeader = "X-Actor"

// WithActor injects the acting identity into the context.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the acting identity recorded for the request, or
// empty when none was provided.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActor).(string); ok {
		return v
	}
	return ""
}

// Actor records the caller identity from the X-Actor header so ledger audit
// entries can attribute admin mutations. Authentication itself is supplied
// by the injected admin middleware.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(actorHeader))
			if actor != "" {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
