package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestClientVersion_Header(t *testing.T) {
	dummy := &dummyHandler{}
	h := ClientVersion(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/examples", nil)
	req.Header.Set(HeaderClientVersion, "1.0.0")
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Fatal("expected next handler to be called")
	}
	if got := GetClientVersionFromContext(dummy.ctx); got != "1.0.0" {
		t.Errorf("expected client version '1.0.0', got '%s'", got)
	}
}

func TestClientVersion_Missing(t *testing.T) {
	dummy := &dummyHandler{}
	h := ClientVersion(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/examples", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", rec.Code)
	}
	if got := GetClientVersionFromContext(dummy.ctx); got != "unknown" {
		t.Errorf("expected 'unknown', got '%s'", got)
	}
}

func TestGetClientVersionFromContext(t *testing.T) {
	if empty := GetClientVersionFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string for missing version, got '%s'", empty)
	}
	ctx := context.WithValue(context.Background(), clientVersionKey, "2.1.0")
	if val := GetClientVersionFromContext(ctx); val != "2.1.0" {
		t.Errorf("expected '2.1.0', got '%s'", val)
	}
}
