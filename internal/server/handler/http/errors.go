package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/client/api"
)

// writeJSON answers with v encoded as JSON.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeUpstreamError relays a 4xx answer from the backend as is. Anything
// else becomes 502.
func writeUpstreamError(w http.ResponseWriter, err error, log *zap.Logger) {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		msg := strings.TrimSpace(httpErr.Body)
		if msg == "" {
			msg = http.StatusText(httpErr.StatusCode)
		}
		http.Error(w, msg, httpErr.StatusCode)
		return
	}
	log.Error("upstream request failed", zap.Error(err))
	http.Error(w, "upstream error", http.StatusBadGateway)
}
