package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/veil/internal/envelope"
	"github.com/atinyakov/veil/internal/models"
)

// fakeBackend answers the four API routes, opening and producing envelopes
// with b when it is set.
func fakeBackend(t *testing.T, b *envelope.Builder, seen *models.SearchRequest) *httptest.Server {
	t.Helper()

	reply := func(w http.ResponseWriter, v any) {
		if b != nil {
			e, err := b.Wrap(v)
			require.NoError(t, err)
			v = e
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	read := func(r *http.Request, dst any) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if env, ok := envelope.Detect(raw); ok {
			require.NoError(t, b.Unwrap(env, dst))
			return
		}
		require.NoError(t, json.Unmarshal(raw, dst))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		var req models.SearchRequest
		read(r, &req)
		if seen != nil {
			*seen = req
		}
		reply(w, models.SearchResponse{
			Cards:         []models.Card{{Name: "Opt", TypeLine: "Instant", OracleText: "Scry 1. Draw a card."}},
			ScryfallQuery: "c:u t:instant",
			TotalCards:    1,
			APIProvider:   req.Provider,
		})
	})
	mux.HandleFunc("/api/examples", func(w http.ResponseWriter, r *http.Request) {
		reply(w, models.Examples{EN: []string{"red creatures"}, ZH: []string{"红色生物"}})
	})
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		provider := r.URL.Query().Get("provider")
		if provider == "broken" {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		reply(w, models.ModelsResponse{
			Success:  true,
			Provider: provider,
			Models:   []models.Model{{ID: "gpt-4o", Name: "GPT-4o", Provider: provider}},
		})
	})
	mux.HandleFunc("/api/validate-key", func(w http.ResponseWriter, r *http.Request) {
		var req models.ValidateKeyRequest
		read(r, &req)
		reply(w, models.ValidationResponse{Valid: req.APIKey == "sk-good", Provider: "openai"})
	})
	return httptest.NewServer(mux)
}

func TestService_SearchCards(t *testing.T) {
	b := testBuilder(t)
	var seen models.SearchRequest
	srv := fakeBackend(t, b, &seen)
	defer srv.Close()

	svc := NewService(New(srv.Client(), srv.URL, WithBuilder(b)), Settings{APIKey: "sk-settings", Model: "gpt-4o"}, nil)

	resp, err := svc.SearchCards(context.Background(), models.SearchRequest{Query: "blue instant", Language: "en", APIKey: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, "sk-settings", seen.APIKey)
	assert.Equal(t, "gpt-4o", seen.Model)
	assert.Equal(t, models.DefaultProvider, seen.Provider)
	assert.Equal(t, "blue instant", seen.Query)

	require.Len(t, resp.Cards, 1)
	assert.Equal(t, "Opt", resp.Cards[0].Name)
	assert.Equal(t, models.DefaultProvider, resp.APIProvider)
}

func TestService_SearchCards_KeepsRequestFields(t *testing.T) {
	var seen models.SearchRequest
	srv := fakeBackend(t, nil, &seen)
	defer srv.Close()

	svc := NewService(New(srv.Client(), srv.URL), Settings{}, nil)
	_, err := svc.SearchCards(context.Background(), models.SearchRequest{Query: "q", APIKey: "sk-req", Provider: "google"})
	require.NoError(t, err)

	assert.Equal(t, "sk-req", seen.APIKey)
	assert.Equal(t, "google", seen.Provider)
}

func TestService_Catalog(t *testing.T) {
	b := testBuilder(t)
	srv := fakeBackend(t, b, nil)
	defer srv.Close()

	svc := NewService(New(srv.Client(), srv.URL, WithBuilder(b)), Settings{Provider: "openai"}, nil)
	ctx := context.Background()

	ex, err := svc.GetExamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"red creatures"}, ex.EN)

	list := svc.GetModels(ctx, "openai")
	require.Len(t, list, 1)
	assert.Equal(t, "openai", list[0].Provider)

	assert.Empty(t, svc.GetModels(ctx, "broken"))
	assert.NotNil(t, svc.GetModels(ctx, "broken"))

	_, err = svc.FetchModels(ctx, "broken")
	assert.ErrorIs(t, err, &HTTPError{StatusCode: http.StatusBadGateway})

	v, err := svc.ValidateAPIKey(ctx, "sk-good")
	require.NoError(t, err)
	assert.True(t, v.Valid)

	v, err = svc.ValidateAPIKey(ctx, "sk-bad")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestService_Settings(t *testing.T) {
	empty := NewService(New(http.DefaultClient, "http://x/"), Settings{}, nil)
	assert.False(t, empty.HasAPIKey())
	assert.Equal(t, "", empty.MaskedAPIKey())
	assert.Equal(t, models.DefaultProvider, empty.SelectedProvider())
	assert.Equal(t, "http://x", empty.APIURL())

	full := NewService(New(http.DefaultClient, "http://x"), Settings{APIKey: "sk-1234567890", Model: "m", Provider: "anthropic"}, nil)
	assert.True(t, full.HasAPIKey())
	assert.Equal(t, "sk-1*****7890", full.MaskedAPIKey())
	assert.Equal(t, "m", full.SelectedModel())
	assert.Equal(t, "anthropic", full.SelectedProvider())
}
