// Package middleware provides HTTP middlewares for envelope handling,
// client identification and request logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const (
	clientVersionKey ctxKey = "client_version"
	envelopeKey      ctxKey = "envelope"
)

// HeaderClientVersion is the request header that names the client build.
const HeaderClientVersion = "X-Client-Version"

// ClientVersion stores the X-Client-Version header in the request context
// so that handlers and the audit log can see which client build called them.
// Requests without the header get "unknown".
func ClientVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := r.Header.Get(HeaderClientVersion)
		if version == "" {
			version = "unknown"
		}
		ctx := context.WithValue(r.Context(), clientVersionKey, version)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientVersionFromContext extracts the client version stored by ClientVersion.
// Returns an empty string if not found.
func GetClientVersionFromContext(ctx context.Context) string {
	val := ctx.Value(clientVersionKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
